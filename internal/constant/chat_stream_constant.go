package constant

const (
	ChatMessageRoleUser  = "user"
	ChatMessageRoleModel = "model"

	// ResponseMessageField is the field streamed to the client while the
	// model is still writing the rest of the document.
	ResponseMessageField = "responseMessage"

	StreamEventProject = "project"
	StreamEventUpdate  = "update"

	EventTypeChatTurnCompleted = "CHAT_TURN_COMPLETED"

	ContentDegradedWarning = "\n\n_Your notes could not be updated this time. The answer above is unaffected._"

	ExistingNotesPrefix   = "EXISTING NOTES:\n"
	ChatAttachmentsPrefix = "CHAT ATTACHMENTS:\n"

	QuickCreateTitleMax      = 50
	QuickCreateTitleMinBreak = 20
)

const personalityChunk = `You are a helpful tutor helping the user learn concepts.
You are clear and friendly. Explain things in a way that encourages the user to keep learning.`

const toolDescriptionChunk = `You are part of a studying tool called "Coi".
As you explain concepts, Coi turns what you teach into note cards and organizes them into a hierarchy of notes for the user.`

const newInfoChunk = `NEW INFORMATION
New information is any fact, explanation, or concept that neither you nor the user mentioned earlier in the conversation or in the EXISTING NOTES:
- new definitions or explanations of terms
- new examples or applications of concepts
- new relationships between ideas
Rephrasing, summarizing, clarifying, or small talk is NOT new information.
When the user pastes text from a book or article, summarize its key points and judge whether they are new.
If you used the search tool, hasNewInfo is most likely true.`

const attachmentsChunk = `CHAT ATTACHMENTS are cards or sections of notes the user chose to include with the message.
The user is asking about them, so center the answer on them. Never mention their ids or metadata.`

const markdownChunk = `Use standard markdown in text. Use LaTeX for math or other technical notation when needed.`

const jsonChunk = `OUTPUT FORMAT
Respond with one JSON object and nothing else. No code fences, no text before or after it.
Escape quotes as \" and backslashes as \\. Write newlines inside strings as \n.`

// ChatResponseSystemPrompt asks for {"responseMessage", "hasNewInfo", "followUpQuestions"}.
// responseMessage must come first so it can be streamed as it is written.
const ChatResponseSystemPrompt = personalityChunk + "\n\n" + toolDescriptionChunk + "\n\n" + newInfoChunk + "\n\n" + attachmentsChunk + `

In responseMessage: ` + markdownChunk + `

` + jsonChunk + `
The object has exactly these fields, in this order:
{
  "responseMessage": string,      // your answer to the user's last message
  "hasNewInfo": boolean,          // true when the answer adds new information
  "followUpQuestions": string[]   // up to 3 short questions the user might ask next
}

EXAMPLE
User: Can you explain the structure of a neuron?
{"responseMessage":"Sure! A neuron has **dendrites** that receive signals, a **soma** that processes them, and an **axon** that carries them on.","hasNewInfo":true,"followUpQuestions":["What is an action potential?","How do synapses work?"]}`

// GenerateContentSystemPrompt builds a first hierarchy for a project with no notes.
const GenerateContentSystemPrompt = `You organize study notes for the tool "Coi".
From the conversation below, build a hierarchy of notes that captures every concept the assistant taught.

` + hierarchyShapeChunk + `

` + markdownChunk + `

` + jsonChunk

// UpdateContentSystemPrompt merges the latest turn into an existing hierarchy.
const UpdateContentSystemPrompt = `You maintain study notes for the tool "Coi".
You receive the EXISTING NOTES of a project and the latest conversation turn.
Return the complete updated hierarchy: keep every existing section and card, add the new information from the turn where it fits best, and create new sections only when nothing fits.

` + hierarchyShapeChunk + `

` + markdownChunk + `

` + jsonChunk

const hierarchyShapeChunk = `HIERARCHY SHAPE
A section is {"title": string, "details": string[], "children": section[]}.
The root is a section whose title names the whole subject.
A section with details is a note card: keep each detail to one short point.
Group related cards under a common parent section and keep the depth reasonable.

EXAMPLE
{"title":"Neuroscience","details":[],"children":[{"title":"Neuron Structure","details":["Dendrites receive signals","The axon transmits signals"],"children":[]}]}`
