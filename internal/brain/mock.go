package brain

import (
	"context"
	"fmt"
)

var mockReplies = map[string]string{
	"en": "Thanks for your question about %q. A city representative can give you full details, but I have noted it.",
	"es": "Gracias por su pregunta sobre %q. Un representante de la ciudad puede darle todos los detalles, pero ya la anoté.",
	"ht": "Mèsi pou kesyon ou sou %q. Yon reprezantan vil la ka ba ou tout detay yo, men mwen note li.",
}

// MockAdapter provides deterministic localized replies when no brain is configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	tmpl, ok := mockReplies[req.Language]
	if !ok {
		tmpl = mockReplies["en"]
	}
	topic := LastUserText(req.Messages)
	if topic == "" {
		topic = "..."
	}
	return Response{Text: fmt.Sprintf(tmpl, topic)}, nil
}
