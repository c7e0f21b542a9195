package negotiation

import (
	"fmt"
	"math/rand"

	"dealdesk/internal/domain/entity/chat"
)

// Canned fallbacks used whenever the generator is unavailable. The
// pipeline must keep moving even with the generation service down.

var initialSellerTemplates = []string{
	"Hi! Saw your listing for %s. Is it still available? Interested in buying.",
	"Hello! Are you still selling the %s? Ready to take a look.",
	"Hey, about the %s - still on? I'm interested.",
}

var initialBuyerTemplates = []string{
	"Hi! Saw you're looking for %s. I can source it - still relevant?",
	"Hello! Still after the %s? I may have an option for you.",
}

var followUpTemplates = []string{
	"Got it. Could you tell me a bit more about the condition?",
	"Understood. Is there any room on the price? I can close quickly.",
	"Okay. What would be the best way to arrange the handover?",
}

func cannedInitial(target chat.MessageTarget, product string) string {
	pool := initialSellerTemplates
	if target == chat.TargetBuyer {
		pool = initialBuyerTemplates
	}
	return fmt.Sprintf(pool[rand.Intn(len(pool))], product)
}

func cannedFollowUp() string {
	return followUpTemplates[rand.Intn(len(followUpTemplates))]
}
