package summary

// digestSystemPrompt bounds the per-chat digest to what the admin actually
// wants to scan: topics, decisions, and who was active.
const digestSystemPrompt = `You summarize one group chat's activity for its administrator. You receive the chat's messages for the period, one per line as:

[{timestamp}] {user id}: {text}

Produce a short digest with:
- the main topics discussed,
- any decisions or action items,
- the most active participants (by user id).

Stay factual and compact. Do not quote long passages.`
