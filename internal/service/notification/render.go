package notification

import (
	"fmt"

	"tainment-service/internal/domain/notification"
)

// Render produces the inbox title and message for an event.
func Render(ev notification.Event) (title, message string) {
	title = ev.Kind.Title()
	p := ev.Payload

	switch ev.Kind {
	case notification.KindExpiringSoon:
		message = fmt.Sprintf("Your %v subscription ends in %v day(s). Renew now to keep your features.", p["tier"], p["days_remaining"])
	case notification.KindDowngraded:
		message = fmt.Sprintf("Your %v subscription has ended and your account is now on %v.", p["previous_tier"], p["new_tier"])
	case notification.KindUpgraded:
		message = fmt.Sprintf("Your account is now on %v.", p["new_tier"])
	case notification.KindExtended:
		message = fmt.Sprintf("Your %v subscription was extended.", p["tier"])
	case notification.KindPaymentCompleted:
		message = fmt.Sprintf("We received your payment of %v %v for %v.", p["amount"], p["currency"], p["tier"])
	case notification.KindPaymentFailed:
		message = fmt.Sprintf("Your payment for %v did not go through: %v.", p["tier"], p["reason"])
	default:
		message = string(ev.Kind)
	}
	return title, message
}
