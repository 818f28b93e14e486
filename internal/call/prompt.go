package call

import "fmt"

// SystemInstruction is the persona the remote model plays for the dialed number.
func SystemInstruction(number, name string) string {
	if name == "" {
		name = number
	}
	return fmt.Sprintf(
		"Je bent een vriendelijke telefonische assistent voor een app genaamd Gemini Voice Link. "+
			"De gebruiker heeft zojuist nummer %s gedraaid (Naam: %s). "+
			"Doe alsof je de persoon bent die ze bellen of een virtuele operator die hen helpt. "+
			"Houd het gesprek natuurlijk en responsief. Spreek Nederlands.",
		number, name,
	)
}
