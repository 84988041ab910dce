package views

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/a-h/templ"
)

type GatewayRedirectProps struct {
	Action        string
	Method        string
	Params        map[string]string
	TransactionID string
	Amount        string
	Currency      string
	// QRCode is an image data URI of Action for paying from another device.
	QRCode string
}

// GatewayRedirect posts the payer to the gateway. The form submits itself;
// the button is the fallback when scripts are disabled.
func GatewayRedirect(props GatewayRedirectProps) templ.Component {
	method := strings.ToLower(strings.TrimSpace(props.Method))
	if method != "get" {
		method = "post"
	}

	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<main class="%s">`, templ.EscapeString(cardClass))
		b.WriteString(`<h1 class="text-xl font-semibold">Redirecting to the payment gateway</h1>`)
		fmt.Fprintf(&b, `<p class="mt-2 text-gray-600">Payment %s for %s %s</p>`,
			templ.EscapeString(props.TransactionID), templ.EscapeString(props.Amount), templ.EscapeString(props.Currency))
		fmt.Fprintf(&b, `<form id="gateway-form" action="%s" method="%s">`,
			templ.EscapeString(string(templ.URL(props.Action))), method)

		keys := make([]string, 0, len(props.Params))
		for key := range props.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s">`,
				templ.EscapeString(key), templ.EscapeString(props.Params[key]))
		}
		fmt.Fprintf(&b, `<button type="submit" class="%s">Continue to payment</button></form>`, templ.EscapeString(buttonClass))

		if props.QRCode != "" {
			fmt.Fprintf(&b, `<img class="mx-auto mt-6 h-40 w-40" alt="Payment QR code" src="%s">`, templ.EscapeString(props.QRCode))
		}
		b.WriteString(`</main><script>document.getElementById("gateway-form").submit();</script>`)

		_, err := io.WriteString(w, b.String())
		return err
	})

	return page("Redirecting to payment", body)
}

type PaymentResultProps struct {
	Success       bool
	TransactionID string
}

func PaymentResult(props PaymentResultProps) templ.Component {
	title := "Payment failed"
	message := "Your payment could not be completed. No money was taken; you can try again from your order."
	accent := "border-red-300"
	if props.Success {
		title = "Payment successful"
		message = "Thank you. Your payment was received and your order is being processed."
		accent = "border-green-300"
	}

	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<main class="%s">`, templ.EscapeString(classes(cardClass, accent, "border-2")))
		fmt.Fprintf(&b, `<h1 class="text-xl font-semibold">%s</h1>`, templ.EscapeString(title))
		fmt.Fprintf(&b, `<p class="mt-2 text-gray-600">%s</p>`, templ.EscapeString(message))
		if props.TransactionID != "" {
			fmt.Fprintf(&b, `<p class="mt-4 text-sm text-gray-500">Reference: <code>%s</code></p>`, templ.EscapeString(props.TransactionID))
		}
		fmt.Fprintf(&b, `<a class="%s" href="/">Back to the shop</a></main>`, templ.EscapeString(buttonClass))

		_, err := io.WriteString(w, b.String())
		return err
	})

	return page(title, body)
}
