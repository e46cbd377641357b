package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// SyntheticColumns is the column layout of Generate. It matches the customer
// attributes accepted by the prediction API plus identifier and target columns.
var SyntheticColumns = []string{
	"CustomerId", "Surname",
	"credit_score", "Geography", "Gender", "Age",
	"loan_age_years", "outstanding_loan_balance", "num_bank_products",
	"has_credit_card", "online_banking_active", "annual_income",
	"monthly_income", "estimated_property_value", "ltv_ratio",
	"payment_to_income_ratio", "risk_score", "balance_per_product",
	"Exited",
}

var surnames = []string{"Hargrave", "Hill", "Onio", "Boni", "Mitchell", "Chu", "Bartlett", "Obinna", "He", "Kay"}

// Generate produces n synthetic mortgage customers with a churn label drawn
// from a logistic model of age, geography, activity, product count and
// leverage. The same seed yields the same table.
func Generate(n int, seed int64) *Table {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]string, n)

	for i := 0; i < n; i++ {
		creditScore := clamp(math.Round(650+rng.NormFloat64()*95), 300, 850)
		geography := pickWeighted(rng, []string{"France", "Germany", "Spain"}, []float64{0.5, 0.25, 0.25})
		gender := pickWeighted(rng, []string{"Male", "Female"}, []float64{0.55, 0.45})
		age := clamp(math.Round(38+rng.NormFloat64()*10), 18, 92)
		loanAge := math.Round(rng.Float64()*30*10) / 10
		products := float64(pickWeighted(rng, []int{1, 2, 3, 4}, []float64{0.5, 0.45, 0.04, 0.01}))
		hasCard := bernoulli(rng, 0.7)
		active := bernoulli(rng, 0.5)
		income := clamp(math.Round(rng.Float64()*190000+10000), 10000, 10_000_000)

		balance := 0.0
		if rng.Float64() < 0.65 {
			balance = clamp(math.Round(rng.NormFloat64()*60000+120000), 0, 10_000_000)
		}

		monthly := income / 12
		property := income * 3.5
		ltv := clamp(balance/property, 0, 2)
		paymentToIncome := clamp(balance*0.005/monthly, 0, 2)
		riskScore := clamp((850-creditScore)/550+ltv/2, 0, 2)
		perProduct := balance / products

		logit := -3.2 +
			0.065*(age-38) +
			0.9*boolf(geography == "Germany") +
			0.5*boolf(gender == "Female") -
			0.9*active +
			1.8*boolf(products >= 3) -
			0.6*boolf(products == 2) +
			0.8*ltv -
			0.002*(creditScore-650)
		exited := bernoulli(rng, 1/(1+math.Exp(-logit)))

		rows[i] = []string{
			strconv.Itoa(15_600_000 + i),
			surnames[rng.Intn(len(surnames))],
			ftoa(creditScore), geography, gender, ftoa(age),
			ftoa(loanAge), ftoa(balance), ftoa(products),
			ftoa(hasCard), ftoa(active), ftoa(income),
			fmt.Sprintf("%.2f", monthly), fmt.Sprintf("%.2f", property), fmt.Sprintf("%.4f", ltv),
			fmt.Sprintf("%.4f", paymentToIncome), fmt.Sprintf("%.4f", riskScore), fmt.Sprintf("%.2f", perProduct),
			ftoa(exited),
		}
	}

	return &Table{Columns: append([]string(nil), SyntheticColumns...), Rows: rows}
}

func pickWeighted[T any](rng *rand.Rand, values []T, weights []float64) T {
	r := rng.Float64()
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return values[i]
		}
	}
	return values[len(values)-1]
}

func bernoulli(rng *rand.Rand, p float64) float64 {
	if rng.Float64() < p {
		return 1
	}
	return 0
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
