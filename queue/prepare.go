package queue

import "strings"

// DefaultHeader is used when no header override is configured.
const DefaultHeader = ""

// DefaultFooter is used when no footer override is configured.
const DefaultFooter = "-----------------------------------------------------------------\n" +
	"This message was created and sent automatically. If you are not the\n" +
	"intended recipient, please forward it to your postmaster for\n" +
	"investigation. Be sure to include the whole message, including the\n" +
	"following lines.\n"

// Text returns a pointer to s, for use as a header or footer override.
func Text(s string) *string { return &s }

// Render builds the send-ready text for m without modifying it. A nil
// override selects the default text and an empty override omits the
// section. The attribute block is only written when the footer is, in
// sorted name order.
func Render(m *Message, header, footer *string) string {
	var b strings.Builder

	h := DefaultHeader
	if header != nil {
		h = *header
	}
	f := DefaultFooter
	if footer != nil {
		f = *footer
	}

	b.WriteString(h)
	b.WriteString(m.body)
	b.WriteString("\n\n")
	if f == "" {
		return b.String()
	}

	b.WriteString(f)
	if !strings.HasSuffix(f, "\n") {
		b.WriteString("\n")
	}
	for _, name := range m.AttributeNames() {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(m.attributes[name])
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// Prepare rewrites the message text to the rendered form and returns it.
// Rendering always starts from the original body, so preparing twice with
// the same overrides yields the same text.
func Prepare(m *Message, header, footer *string) string {
	m.text = Render(m, header, footer)
	return m.text
}
