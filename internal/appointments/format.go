package appointments

import (
	"fmt"
	"strings"
)

const separatorWidth = 30

// FormatConfirmation renders appointment rows into the WhatsApp confirmation
// message: fixed header, one block per record, and the yes/no prompt. No
// wrapping or channel length limits are applied.
func FormatConfirmation(appointments []Appointment) string {
	if len(appointments) == 0 {
		return "No appointments found for this number."
	}

	var b strings.Builder
	b.WriteString("🏥 *Hello! Welcome to Assana Clinic*\n\n")
	b.WriteString("Here are your appointment details:\n\n")

	for _, apt := range appointments {
		bookingStr := "Not specified"
		if apt.BookingTime != nil {
			bookingStr = apt.BookingTime.Format(DisplayLayout)
		}
		fmt.Fprintf(&b, "👤 *Patient Name:* %s\n", apt.PatientName)
		fmt.Fprintf(&b, "📅 *Appointment Time:* %s\n", bookingStr)
		b.WriteString(strings.Repeat("─", separatorWidth) + "\n\n")
	}

	b.WriteString("Thank you for choosing Assana Clinic! 🙏\n\n")
	b.WriteString("📝 *Please confirm:* Is the information above correct?\n")
	b.WriteString("Reply with:\n")
	b.WriteString("• 'Yes' or 'Correct' - if information is accurate\n")
	b.WriteString("• 'No' or 'Wrong' - if any details need to be updated")
	return b.String()
}
