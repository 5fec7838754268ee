package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/validation"
)

const (
	hexColorPattern   = `^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`
	stripeKeyPattern  = `^(sk|pk)_(test|live)_[A-Za-z0-9]+$`
	emailPattern      = `^[^\s@]+@[^\s@]+\.[^\s@]+$`
	phonePattern      = `^\+?[\d\s-]+$`
	websitePattern    = `^(https?:\/\/)?([\da-z.-]+)\.([a-z.]{2,6})([\/\w .-]*)*\/?$`
	providersRulesKey = "providers"
)

var (
	hexColor  = validation.Rule{Required: true, Pattern: hexColorPattern}
	stripeKey = validation.Rule{Required: true, Pattern: stripeKeyPattern}
	secret    = validation.Rule{Required: true, MinLength: validation.Ptr(32)}
)

// BuiltinRules returns the default rules of section. Mobile money provider
// rules live under payment.mobileMoney.providers and are applied to each
// enabled provider.
func BuiltinRules(section Section) (validation.Schema, error) {
	switch section {
	case SectionGeneral:
		return validation.Schema{
			"app": validation.Nest(validation.Schema{
				"name": validation.Field(validation.Rule{
					Required:  true,
					MinLength: validation.Ptr(3),
					MaxLength: validation.Ptr(50),
				}),
				"email":   validation.Field(validation.Rule{Required: true, Pattern: emailPattern}),
				"phone":   validation.Field(validation.Rule{Required: true, Pattern: phonePattern}),
				"website": validation.Field(validation.Rule{Required: true, Pattern: websitePattern}),
			}),
			"theme": validation.Nest(validation.Schema{
				"primaryColor":   validation.Field(hexColor),
				"secondaryColor": validation.Field(hexColor),
				"accentColor":    validation.Field(hexColor),
			}),
		}, nil
	case SectionService:
		return validation.Schema{}, nil
	case SectionPayment:
		return validation.Schema{
			"stripe": validation.Nest(validation.Schema{
				"stripeKey":       validation.Field(stripeKey),
				"stripePublicKey": validation.Field(stripeKey),
			}),
			"mobileMoney": validation.Nest(validation.Schema{
				providersRulesKey: validation.Nest(validation.Schema{
					"apiKey":    validation.Field(secret),
					"secretKey": validation.Field(secret),
				}),
			}),
			"wallet": validation.Nest(validation.Schema{
				"minimumBalance": validation.Field(validation.Rule{Kind: validation.KindNumber, Required: true, Min: validation.Ptr(0.0)}),
				"maximumBalance": validation.Field(validation.Rule{Kind: validation.KindNumber, Required: true, Min: validation.Ptr(1000.0)}),
			}),
		}, nil
	}
	return nil, ErrInvalidSection
}

// ValidateSection validates a decoded section value against compiled rules.
// Every field of the struct is present, so required only fails for empty
// strings.
func ValidateSection(section Section, value any, rules *validation.Compiled) (validation.ErrorMap, error) {
	values, err := toValues(value)
	if err != nil {
		return nil, err
	}
	return validateValues(section, value, values, rules)
}

// ValidateDocument strictly decodes raw into the struct of section and checks
// the fields raw carries against rules. Fields left out of raw stay absent,
// so required rules on number and bool fields apply.
func ValidateDocument(section Section, raw json.RawMessage, rules *validation.Compiled) (any, validation.ErrorMap, error) {
	value, err := DecodeSection(section, raw)
	if err != nil {
		return nil, nil, err
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedSettings, err)
	}
	errs, err := validateValues(section, value, values, rules)
	if err != nil {
		return nil, nil, err
	}
	return value, errs, nil
}

func validateValues(section Section, value any, values map[string]any, rules *validation.Compiled) (validation.ErrorMap, error) {
	if section == SectionPayment {
		p, ok := value.(PaymentSettings)
		if !ok {
			return nil, fmt.Errorf("payment section holds %T", value)
		}
		return validatePayment(p, values, rules)
	}
	return rules.Validate(values)
}

// validatePayment skips the rules of disabled gateways and applies the
// provider rules to every enabled mobile money provider. Provider errors are
// reported at mobileMoney.providers.<provider name>. p decides which gateways
// and providers are on; values holds the fields that are checked.
func validatePayment(p PaymentSettings, values map[string]any, rules *validation.Compiled) (validation.ErrorMap, error) {
	skip := []string{"mobileMoney"}
	for _, method := range paymentMethods {
		if !IsPaymentMethodEnabled(p, method) {
			skip = append(skip, method)
		}
	}
	errs, err := rules.Without(skip...).Validate(values)
	if err != nil {
		return nil, err
	}

	mmRules, ok := rules.Child("mobileMoney")
	if !p.MobileMoney.Enabled || !ok {
		return errs, nil
	}
	mmValues, _ := values["mobileMoney"].(map[string]any)
	mmErrs, err := mmRules.Without(providersRulesKey).Validate(mmValues)
	if err != nil {
		return nil, err
	}

	if providerRules, ok := mmRules.Child(providersRulesKey); ok {
		rawProviders, _ := mmValues[providersRulesKey].([]any)
		providerErrs := validation.ErrorMap{}
		for i, provider := range p.MobileMoney.Providers {
			if !provider.Enabled {
				continue
			}
			var pv map[string]any
			if i < len(rawProviders) {
				pv, _ = rawProviders[i].(map[string]any)
			}
			pe, err := providerRules.Validate(pv)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", provider.Name, err)
			}
			if !pe.Empty() {
				providerErrs[provider.Name] = validation.FieldError{Nested: pe}
			}
		}
		if !providerErrs.Empty() {
			mmErrs[providersRulesKey] = validation.FieldError{Nested: providerErrs}
		}
	}

	if !mmErrs.Empty() {
		errs["mobileMoney"] = validation.FieldError{Nested: mmErrs}
	}
	return errs, nil
}

// CheckRulesFit reports whether rules can be evaluated against the shape of
// the section. Every gateway and provider is enabled and every text field is
// filled, so a rule whose kind does not match its settings field fails. A rule
// on a field the section does not have is rejected as well, since strict
// decoding would never let that field be set.
func CheckRulesFit(section Section, rules *validation.Compiled) error {
	value, err := DefaultSettings().Section(section)
	if err != nil {
		return err
	}
	values, err := toValues(value)
	if err != nil {
		return err
	}
	fillSample(values)

	if absent := absentFields(section, values, rules); len(absent) > 0 {
		return fmt.Errorf("%w: unknown %s fields: %s", ErrInvalidSchema, section, strings.Join(absent, ", "))
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	sample, err := DecodeSection(section, raw)
	if err != nil {
		return err
	}
	if _, err := ValidateSection(section, sample, rules); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return nil
}

// absentFields lists the rule paths that have no field in the section shape.
// Payment provider rules are matched against a single provider.
func absentFields(section Section, values map[string]any, rules *validation.Compiled) []string {
	if section != SectionPayment {
		return rules.Absent(values)
	}
	absent := rules.Without("mobileMoney").Absent(values)
	mmRules, ok := rules.Child("mobileMoney")
	if !ok {
		return absent
	}
	mmValues, _ := values["mobileMoney"].(map[string]any)
	for _, path := range mmRules.Without(providersRulesKey).Absent(mmValues) {
		absent = append(absent, "mobileMoney."+path)
	}
	if providerRules, ok := mmRules.Child(providersRulesKey); ok {
		providerValues, _ := toValues(MobileMoneyProvider{})
		for _, path := range providerRules.Absent(providerValues) {
			absent = append(absent, "mobileMoney."+providersRulesKey+"."+path)
		}
	}
	return absent
}

func fillSample(values map[string]any) {
	for key, v := range values {
		switch t := v.(type) {
		case string:
			values[key] = "x"
		case bool:
			if key == "enabled" {
				values[key] = true
			}
		case map[string]any:
			fillSample(t)
		case []any:
			for _, item := range t {
				if m, ok := item.(map[string]any); ok {
					fillSample(m)
				}
			}
		}
	}
}

var paymentMethods = []string{"cashOnDelivery", "stripe", "mobileMoney", "wallet"}
