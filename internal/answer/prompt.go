package answer

import (
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// RefusalMessage is returned verbatim whenever the retrieved context cannot
// ground an answer.
const RefusalMessage = "The provided documents do not contain this information."

// SystemPrompt fixes the output contract for the generation service.
const SystemPrompt = `You answer questions for a multi-document question answering system.
Use ONLY the retrieved document chunks supplied in the user message. Never use prior knowledge, never guess, never complete partial facts.

Rules:
1. If the chunks do not explicitly contain the answer, reply with exactly:
   "` + RefusalMessage + `"
   and an empty sources list.
2. Every statement in the answer must be supported by at least one retrieved chunk.
3. Cite only chunks that appear in the retrieved context, using their chunk_id exactly as given.
4. You may combine several documents; list every chunk you used.

Return ONLY one JSON object, with no text before or after it:
{
  "answer": "<concise answer based strictly on the retrieved chunks>",
  "sources": [
    {"document_name": "<document_name>", "page": <page_number>, "chunk_id": "<chunk_id>"}
  ]
}

When the information is missing:
{"answer": "` + RefusalMessage + `", "sources": []}`

// FormatContext renders the retrieved chunks as tagged blocks.
func FormatContext(chunks []domain.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		parts = append(parts, fmt.Sprintf(
			"--- Retrieved Chunk %d ---\ndocument_name: %s\npage_number: %d\nchunk_id: %s\ntext: %s\n",
			i+1, c.DocumentName, c.PageNumber, c.ChunkID, c.Text,
		))
	}
	return strings.Join(parts, "\n")
}

// BuildUserMessage embeds the question and every retrieved chunk.
func BuildUserMessage(question string, chunks []domain.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString("### User Question\n")
	b.WriteString(question)
	b.WriteString("\n\n### Retrieved Document Chunks\n")
	b.WriteString(FormatContext(chunks))
	b.WriteString("\n### Instructions\n")
	b.WriteString("Answer the question using ONLY the retrieved chunks above. ")
	b.WriteString(`Return a JSON object with "answer" and "sources" fields. `)
	b.WriteString("If the answer is not in the chunks, respond with the refusal message.")
	return b.String()
}
