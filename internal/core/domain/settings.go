package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Section names one independently stored part of the admin settings.
type Section string

const (
	SectionGeneral Section = "general"
	SectionService Section = "service"
	SectionPayment Section = "payment"
)

var Sections = []Section{SectionGeneral, SectionService, SectionPayment}

func ParseSection(s string) (Section, error) {
	switch Section(s) {
	case SectionGeneral, SectionService, SectionPayment:
		return Section(s), nil
	}
	return "", ErrInvalidSection
}

type Settings struct {
	General GeneralSettings `json:"general"`
	Service ServiceSettings `json:"service"`
	Payment PaymentSettings `json:"payment"`
}

type GeneralSettings struct {
	App   AppInfo    `json:"app"`
	Theme Theme      `json:"theme"`
	Site  SiteConfig `json:"site"`
	Links StoreLinks `json:"links"`
}

type AppInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Website     string `json:"website"`
	Address     string `json:"address"`
}

type Theme struct {
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	AccentColor    string `json:"accentColor"`
}

type SiteConfig struct {
	DateFormat   string `json:"dateFormat"`
	TimeFormat   string `json:"timeFormat"`
	Timezone     string `json:"timezone"`
	Language     string `json:"language"`
	Currency     string `json:"currency"`
	DistanceUnit string `json:"distanceUnit"`
}

type StoreLinks struct {
	AndroidUser     string `json:"androidUser"`
	AndroidProvider string `json:"androidProvider"`
	AndroidHandyman string `json:"androidHandyman"`
	IOSUser         string `json:"iosUser"`
	IOSProvider     string `json:"iosProvider"`
	IOSHandyman     string `json:"iosHandyman"`
}

type ServiceSettings struct {
	Features Features  `json:"features"`
	App      AppConfig `json:"app"`
}

type Features struct {
	AdvancePayment     bool `json:"advancePayment"`
	SlotBooking        bool `json:"slotBooking"`
	DigitalServices    bool `json:"digitalServices"`
	ServicePackages    bool `json:"servicePackages"`
	ServiceAddons      bool `json:"serviceAddons"`
	PostService        bool `json:"postService"`
	CancellationCharge bool `json:"cancellationCharge"`
}

type AppConfig struct {
	SocialLogin          SocialLogin `json:"socialLogin"`
	OnlinePayment        bool        `json:"onlinePayment"`
	Blog                 bool        `json:"blog"`
	UserWallet           bool        `json:"userWallet"`
	ForceUpdate          ForceUpdate `json:"forceUpdate"`
	InAppPurchase        bool        `json:"inAppPurchase"`
	FirebaseNotification bool        `json:"firebaseNotification"`
	AutoAssignProvider   bool        `json:"autoAssignProvider"`
	WhatsappNotification bool        `json:"whatsappNotification"`
	SMSNotification      bool        `json:"smsNotification"`
}

type SocialLogin struct {
	Enabled bool `json:"enabled"`
	Google  bool `json:"google"`
	Apple   bool `json:"apple"`
	OTP     bool `json:"otp"`
}

type ForceUpdate struct {
	User     bool `json:"user"`
	Provider bool `json:"provider"`
	Admin    bool `json:"admin"`
}

type PaymentSettings struct {
	CashOnDelivery CashOnDelivery `json:"cashOnDelivery"`
	Stripe         Stripe         `json:"stripe"`
	MobileMoney    MobileMoney    `json:"mobileMoney"`
	Wallet         Wallet         `json:"wallet"`
}

type CashOnDelivery struct {
	Enabled     bool   `json:"enabled"`
	GatewayName string `json:"gatewayName"`
}

type Stripe struct {
	Enabled         bool   `json:"enabled"`
	Mode            string `json:"mode"`
	GatewayName     string `json:"gatewayName"`
	StripeURL       string `json:"stripeUrl"`
	StripeKey       string `json:"stripeKey"`
	StripePublicKey string `json:"stripePublicKey"`
}

type MobileMoney struct {
	Enabled   bool                  `json:"enabled"`
	Providers []MobileMoneyProvider `json:"providers"`
}

type MobileMoneyProvider struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"secretKey"`
}

type Wallet struct {
	Enabled        bool    `json:"enabled"`
	MinimumBalance float64 `json:"minimumBalance"`
	MaximumBalance float64 `json:"maximumBalance"`
}

func DefaultGeneral() GeneralSettings {
	return GeneralSettings{}
}

func DefaultService() ServiceSettings {
	return ServiceSettings{}
}

func DefaultPayment() PaymentSettings {
	return PaymentSettings{
		Stripe: Stripe{Mode: "test"},
		MobileMoney: MobileMoney{
			Providers: []MobileMoneyProvider{
				{Name: "M-Pesa"},
				{Name: "Tigo Pesa"},
				{Name: "Airtel Money"},
			},
		},
	}
}

func DefaultSettings() Settings {
	return Settings{
		General: DefaultGeneral(),
		Service: DefaultService(),
		Payment: DefaultPayment(),
	}
}

// SettingsDocument is the stored JSON of one section for one tenant.
type SettingsDocument struct {
	TenantID  string
	Section   Section
	Data      json.RawMessage
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DecodeSection strictly decodes raw into the struct of section. Unknown
// fields and trailing data are rejected.
func DecodeSection(section Section, raw json.RawMessage) (any, error) {
	var target any
	switch section {
	case SectionGeneral:
		target = &GeneralSettings{}
	case SectionService:
		target = &ServiceSettings{}
	case SectionPayment:
		target = &PaymentSettings{}
	default:
		return nil, ErrInvalidSection
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSettings, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedSettings)
	}

	switch v := target.(type) {
	case *GeneralSettings:
		return *v, nil
	case *ServiceSettings:
		return *v, nil
	default:
		return *target.(*PaymentSettings), nil
	}
}

// Apply stores a decoded section value into s.
func (s *Settings) Apply(section Section, value any) error {
	switch v := value.(type) {
	case GeneralSettings:
		if section != SectionGeneral {
			return ErrInvalidSection
		}
		s.General = v
	case ServiceSettings:
		if section != SectionService {
			return ErrInvalidSection
		}
		s.Service = v
	case PaymentSettings:
		if section != SectionPayment {
			return ErrInvalidSection
		}
		s.Payment = v
	default:
		return fmt.Errorf("unsupported settings value %T", value)
	}
	return nil
}

// Section returns the value of one section of s.
func (s Settings) Section(section Section) (any, error) {
	switch section {
	case SectionGeneral:
		return s.General, nil
	case SectionService:
		return s.Service, nil
	case SectionPayment:
		return s.Payment, nil
	}
	return nil, ErrInvalidSection
}

// toValues converts a settings struct into the map shape the validator walks.
func toValues(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return values, nil
}
