package domain

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	DefaultCurrency   = "TZS"
	DefaultDateLayout = "DD-MM-YYYY"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatCurrency renders amount with thousands grouping followed by the
// currency code, e.g. "1,500,000 TZS".
func FormatCurrency(amount float64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return amountPrinter.Sprintf("%v %s", number.Decimal(amount, number.MaxFractionDigits(3)), currency)
}

// FormatDate replaces the first DD, MM and YYYY tokens of layout with the
// zero-padded day, month and year of t.
func FormatDate(t time.Time, layout string) string {
	if layout == "" {
		layout = DefaultDateLayout
	}
	day := twoDigits(t.Day())
	month := twoDigits(int(t.Month()))
	out := strings.Replace(layout, "DD", day, 1)
	out = strings.Replace(out, "MM", month, 1)
	return strings.Replace(out, "YYYY", strconv.Itoa(t.Year()), 1)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// IsFeatureEnabled reports whether the named service feature is on. Unknown
// features are off.
func IsFeatureEnabled(s ServiceSettings, feature string) bool {
	f := s.Features
	switch feature {
	case "advancePayment":
		return f.AdvancePayment
	case "slotBooking":
		return f.SlotBooking
	case "digitalServices":
		return f.DigitalServices
	case "servicePackages":
		return f.ServicePackages
	case "serviceAddons":
		return f.ServiceAddons
	case "postService":
		return f.PostService
	case "cancellationCharge":
		return f.CancellationCharge
	}
	return false
}

// IsPaymentMethodEnabled reports whether the named payment gateway is on.
func IsPaymentMethodEnabled(p PaymentSettings, method string) bool {
	switch method {
	case "cashOnDelivery":
		return p.CashOnDelivery.Enabled
	case "stripe":
		return p.Stripe.Enabled
	case "mobileMoney":
		return p.MobileMoney.Enabled
	case "wallet":
		return p.Wallet.Enabled
	}
	return false
}

// ActivePaymentMethods lists enabled gateways in the order cashOnDelivery,
// stripe, mobileMoney, wallet.
func ActivePaymentMethods(p PaymentSettings) []string {
	methods := make([]string, 0, len(paymentMethods))
	for _, m := range paymentMethods {
		if IsPaymentMethodEnabled(p, m) {
			methods = append(methods, m)
		}
	}
	return methods
}

// ActiveMobileMoneyProviders returns the enabled providers in stored order.
// Providers are listed regardless of the mobileMoney switch.
func ActiveMobileMoneyProviders(p PaymentSettings) []MobileMoneyProvider {
	out := make([]MobileMoneyProvider, 0, len(p.MobileMoney.Providers))
	for _, provider := range p.MobileMoney.Providers {
		if provider.Enabled {
			out = append(out, provider)
		}
	}
	return out
}
