package llms

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tandem-dev/tandem/pkg/protocol"
)

const (
	contextEncoding = "cl100k_base"

	// Every message carries a few tokens of chat framing, and the reply is
	// primed with a few more.
	tokensPerMessage = 3
	replyPriming     = 3
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

func getEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding(contextEncoding)
	})
	return encoding, encodingErr
}

// CountTokens measures the prompt size of a conversation. When the tokenizer
// cannot be loaded it falls back to a bytes/4 estimate and says so in the
// returned source.
func CountTokens(messages []protocol.Message) (tokens int, accurate bool, source string) {
	enc, err := getEncoding()
	if err != nil {
		return estimateTokens(messages), false, "heuristic"
	}

	total := 0
	for _, m := range messages {
		total += tokensPerMessage
		total += len(enc.Encode(string(m.Role), nil, nil))
		total += len(enc.Encode(messageText(m), nil, nil))
	}
	total += replyPriming
	return total, true, "tiktoken"
}

func estimateTokens(messages []protocol.Message) int {
	total := 0
	for _, m := range messages {
		total += tokensPerMessage + (len(m.Role)+len(messageText(m)))/4
	}
	return total + replyPriming
}

// messageText flattens a message to the text the model is billed for:
// visible text plus tool call arguments and tool result payloads.
func messageText(m protocol.Message) string {
	var sb strings.Builder
	sb.WriteString(m.Text())
	for _, c := range m.ToolCallList() {
		sb.WriteString(c.Function.Name)
		sb.WriteString(c.Function.Arguments)
	}
	for _, b := range m.ToolResultBlocks() {
		sb.WriteString(b.Content)
	}
	return sb.String()
}
