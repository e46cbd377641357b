package serving

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// CustomerRecord is one customer as received from a client: attribute name
// to value. Numbers are float64 (as decoded by encoding/json) or numeric
// strings; categorical attributes are strings.
type CustomerRecord map[string]any

// Kind is the value type a field accepts.
type Kind int

const (
	Number Kind = iota
	Integer
	Category
)

// FieldSpec describes one attribute of a customer record.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Required bool
	Min, Max float64
	Allowed  []string
}

// Schema is the ordered list of accepted attributes.
type Schema []FieldSpec

// Customer attribute names.
const (
	FieldCreditScore            = "credit_score"
	FieldGeography              = "Geography"
	FieldGender                 = "Gender"
	FieldAge                    = "Age"
	FieldLoanAgeYears           = "loan_age_years"
	FieldOutstandingLoanBalance = "outstanding_loan_balance"
	FieldNumBankProducts        = "num_bank_products"
	FieldHasCreditCard          = "has_credit_card"
	FieldOnlineBankingActive    = "online_banking_active"
	FieldAnnualIncome           = "annual_income"
	FieldMonthlyIncome          = "monthly_income"
	FieldPropertyValue          = "estimated_property_value"
	FieldLTVRatio               = "ltv_ratio"
	FieldPaymentToIncome        = "payment_to_income_ratio"
	FieldRiskScore              = "risk_score"
	FieldBalancePerProduct      = "balance_per_product"
)

// DefaultSchema returns the mortgage customer schema served by the API.
func DefaultSchema() Schema {
	return Schema{
		{Name: FieldCreditScore, Kind: Number, Required: true, Min: 300, Max: 850},
		{Name: FieldGeography, Kind: Category, Required: true, Allowed: []string{"France", "Spain", "Germany"}},
		{Name: FieldGender, Kind: Category, Required: true, Allowed: []string{"Male", "Female"}},
		{Name: FieldAge, Kind: Integer, Required: true, Min: 18, Max: 100},
		{Name: FieldLoanAgeYears, Kind: Number, Required: true, Min: 0, Max: 50},
		{Name: FieldOutstandingLoanBalance, Kind: Number, Required: true, Min: 0, Max: 10_000_000},
		{Name: FieldNumBankProducts, Kind: Integer, Required: true, Min: 1, Max: 4},
		{Name: FieldHasCreditCard, Kind: Integer, Required: true, Min: 0, Max: 1},
		{Name: FieldOnlineBankingActive, Kind: Integer, Required: true, Min: 0, Max: 1},
		{Name: FieldAnnualIncome, Kind: Number, Required: true, Min: 0, Max: 10_000_000},
		{Name: FieldMonthlyIncome, Kind: Number, Min: 0, Max: 1_000_000},
		{Name: FieldPropertyValue, Kind: Number, Min: 0, Max: 100_000_000},
		{Name: FieldLTVRatio, Kind: Number, Min: 0, Max: 2},
		{Name: FieldPaymentToIncome, Kind: Number, Min: 0, Max: 2},
		{Name: FieldRiskScore, Kind: Number, Min: 0, Max: 2},
		{Name: FieldBalancePerProduct, Kind: Number, Min: 0, Max: 10_000_000},
	}
}

// FieldError describes why one attribute was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected attribute of a record.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid customer record: " + strings.Join(parts, "; ")
}

// Customer is a validated record. Numeric attributes, integer ones included,
// are held as float64.
type Customer struct {
	Numbers    map[string]float64
	Categories map[string]string
}

// Validate checks rec against the schema and returns the normalised
// customer. Unknown attributes are ignored. On failure the error is a
// *ValidationError naming every offending field in schema order.
func (s Schema) Validate(rec CustomerRecord) (*Customer, error) {
	c := &Customer{
		Numbers:    make(map[string]float64, len(s)),
		Categories: make(map[string]string, 2),
	}
	var errs []FieldError
	fail := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for _, spec := range s {
		raw, ok := rec[spec.Name]
		if !ok || raw == nil {
			if spec.Required {
				fail(spec.Name, "field required")
			}
			continue
		}

		if spec.Kind == Category {
			v, ok := raw.(string)
			if !ok {
				fail(spec.Name, "must be a string")
				continue
			}
			if !slices.Contains(spec.Allowed, v) {
				fail(spec.Name, "must be one of %s", strings.Join(spec.Allowed, ", "))
				continue
			}
			c.Categories[spec.Name] = v
			continue
		}

		v, ok := toFloat(raw)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			fail(spec.Name, "must be a number")
			continue
		}
		if spec.Kind == Integer && v != math.Trunc(v) {
			fail(spec.Name, "must be an integer")
			continue
		}
		if v < spec.Min || v > spec.Max {
			fail(spec.Name, "must be between %s and %s", ftoa(spec.Min), ftoa(spec.Max))
			continue
		}
		c.Numbers[spec.Name] = v
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return c, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// PropertyMultiple estimates a property value from annual income.
const PropertyMultiple = 3.5

// Derive fills optional attributes the client left out: monthly income is
// annual income / 12, property value is annual income x 3.5, loan-to-value
// and balance-per-product are ratios of the outstanding balance, and the
// payment-to-income ratio and risk score default to 0.
func (c *Customer) Derive() {
	n := c.Numbers
	annual := n[FieldAnnualIncome]
	balance := n[FieldOutstandingLoanBalance]

	setDefault(n, FieldMonthlyIncome, annual/12)
	setDefault(n, FieldPropertyValue, annual*PropertyMultiple)

	ltv := 0.0
	if p := n[FieldPropertyValue]; p > 0 {
		ltv = balance / p
	}
	setDefault(n, FieldLTVRatio, ltv)

	bpp := 0.0
	if products := n[FieldNumBankProducts]; products > 0 {
		bpp = balance / products
	}
	setDefault(n, FieldBalancePerProduct, bpp)

	setDefault(n, FieldPaymentToIncome, 0)
	setDefault(n, FieldRiskScore, 0)
}

func setDefault(m map[string]float64, key string, v float64) {
	if _, ok := m[key]; !ok {
		m[key] = v
	}
}

// FeatureValues returns the model-input view of the customer: numeric
// attributes by name and one indicator per categorical value, named like the
// training encoder names its one-hot columns.
func (c *Customer) FeatureValues(oneHot func(column, category string) string) map[string]float64 {
	out := make(map[string]float64, len(c.Numbers)+len(c.Categories))
	for k, v := range c.Numbers {
		out[k] = v
	}
	for k, v := range c.Categories {
		out[oneHot(k, v)] = 1
	}
	return out
}
