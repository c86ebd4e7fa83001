// Package static provides a deterministic, offline drafter used when no
// external collaborator is wired in and throughout the tests.
package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaultflow/vaultflow/service/drafter"
)

// Service renders template-based drafts from the request alone.
type Service struct{}

// New creates a static drafter.
func New() *Service {
	return &Service{}
}

// Draft produces two deterministic variants honoring the content spec.
func (s *Service) Draft(_ context.Context, request *drafter.Request) (*drafter.Result, error) {
	if request == nil || strings.TrimSpace(request.Topic) == "" {
		return nil, drafter.ErrEmptyDraft
	}
	result := &drafter.Result{}
	for i := 0; i < drafter.Variants; i++ {
		result.Variants[i] = render(request, i+1)
	}
	return result, nil
}

func render(request *drafter.Request, variant int) string {
	var b strings.Builder
	spec := request.Spec
	b.WriteString(fmt.Sprintf("Variant %d\n", variant))
	if spec.Hook {
		b.WriteString(fmt.Sprintf("Hook: what nobody tells you about %s\n", request.Topic))
	}
	tone := request.Tone
	if tone == "" {
		tone = "professional"
	}
	audience := request.Audience
	if audience == "" {
		audience = "general"
	}
	b.WriteString(fmt.Sprintf("Body: %s, written in a %s tone for a %s audience.\n",
		request.Topic, tone, audience))
	if spec.CallToAction {
		b.WriteString("CTA: share your take in the comments.\n")
	}
	if spec.MaxHashtags > 0 {
		count := spec.MaxHashtags
		if count > 3 {
			count = 3
		}
		tags := make([]string, 0, count)
		for _, word := range strings.Fields(strings.ToLower(request.Topic)) {
			if len(tags) == count {
				break
			}
			tags = append(tags, "#"+strings.Trim(word, ".,!?"))
		}
		b.WriteString("Hashtags: " + strings.Join(tags, " ") + "\n")
	}
	return b.String()
}
