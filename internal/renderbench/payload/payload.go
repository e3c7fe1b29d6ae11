// Package payload generates the synthetic trade confirmations submitted to the rendering API.
// Generation is deterministic per request index, so a rerun submits the same documents.
package payload

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobRequest is one render job as it is sent to the API.
type JobRequest struct {
	TemplateId string `json:"template_id"`
	Data       any    `json:"data"`
}

type Company struct {
	Logo    *string `json:"logo"`
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Phone   string  `json:"phone"`
}

type Customer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
}

type Transaction struct {
	Date              string `json:"date"`
	Reference         string `json:"reference"`
	Currency          string `json:"currency"`
	ClientCode        string `json:"client_code"`
	CommissionPercent string `json:"commission_percent"`
	MinimumFee        string `json:"minimum_fee"`
}

// Trade is one line of the confirmation. Exactly one of BuyAmount and SellAmount is set.
type Trade struct {
	Stock      string `json:"stock"`
	Lots       string `json:"lots"`
	Shares     string `json:"shares"`
	Price      string `json:"price"`
	BuyAmount  string `json:"buy_amount"`
	SellAmount string `json:"sell_amount"`
}

type Summary struct {
	GrossAmount     string `json:"gross_amount"`
	BrokerageFee    string `json:"brokerage_fee"`
	VatBrokerageFee string `json:"vat_brokerage_fee"`
	TotalCharges    string `json:"total_charges"`
	SalesTax        string `json:"sales_tax"`
	WithholdingTax  string `json:"withholding_tax"`
}

// TradeConfirmation is the document data consumed by the trade confirmation template.
type TradeConfirmation struct {
	ConfirmationId string      `json:"confirmation_id"`
	Company        Company     `json:"company"`
	Customer       Customer    `json:"customer"`
	Transaction    Transaction `json:"transaction"`
	Details        []Trade     `json:"details"`
	Summary        Summary     `json:"summary"`
	TotalAmount    string      `json:"total_amount"`
	DueAmount      string      `json:"due_amount"`
}

type stock struct {
	symbol   string
	name     string
	minPrice int
	maxPrice int
}

var germanStocks = []stock{
	{"SIE.DE", "Siemens AG", 150, 200},
	{"SAP.DE", "SAP SE", 180, 220},
	{"BAS.DE", "BASF SE", 40, 60},
	{"DTE.DE", "Deutsche Telekom AG", 18, 25},
	{"BMW.DE", "Bayerische Motoren Werke AG", 80, 100},
	{"ALV.DE", "Allianz SE", 200, 250},
	{"BAYN.DE", "Bayer AG", 30, 50},
	{"DAI.DE", "Daimler AG", 60, 80},
	{"DBK.DE", "Deutsche Bank AG", 10, 15},
	{"DPW.DE", "Deutsche Post AG", 40, 50},
}

var (
	firstNames = []string{"Max", "Anna", "Felix", "Sophie", "Thomas"}
	lastNames  = []string{"Müller", "Schmidt", "Schneider", "Fischer", "Weber"}
	domains    = []string{"gmail.com", "yahoo.com", "web.de", "outlook.com"}

	vatRate            = decimal.RequireFromString("0.19")
	withholdingTaxRate = decimal.RequireFromString("0.25")
	hundred            = decimal.NewFromInt(100)
)

const tradesPerConfirmation = 4

// Generator produces trade confirmations for a fixed template.
type Generator struct {
	TemplateId string
	// Seed is mixed with the request index so that different runs can use different documents.
	Seed int64
	// Now anchors transaction dates. Defaults to time.Now.
	Now func() time.Time
}

func NewGenerator(templateId string) *Generator {
	return &Generator{TemplateId: templateId, Now: time.Now}
}

// Requests returns n job requests for indices 0..n-1.
func (g *Generator) Requests(n int) []JobRequest {
	requests := make([]JobRequest, n)
	for i := 0; i < n; i++ {
		requests[i] = g.Request(i)
	}
	return requests
}

func (g *Generator) Request(index int) JobRequest {
	return JobRequest{
		TemplateId: g.TemplateId,
		Data:       g.TradeConfirmation(index),
	}
}

// TradeConfirmation returns the confirmation for the given index. The same index always yields the same
// document for a given Seed and Now.
func (g *Generator) TradeConfirmation(index int) *TradeConfirmation {
	rng := rand.New(rand.NewSource(g.Seed + int64(index)))
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	confirmationId := uuid.Must(uuid.NewRandomFromReader(rng))
	customer := generateCustomer(rng)
	transaction := generateTransaction(rng, now())
	details, gross := generateTrades(rng, tradesPerConfirmation)

	commission := decimal.RequireFromString(transaction.CommissionPercent)
	minimumFee := decimal.RequireFromString(transaction.MinimumFee)
	summary, totalCharges, withholdingTax := generateSummary(gross, commission, minimumFee)

	// Gains are reduced by fees and withholding tax; purchases only by fees.
	total := gross.Sub(totalCharges)
	if gross.IsPositive() {
		total = total.Sub(withholdingTax)
	}

	return &TradeConfirmation{
		ConfirmationId: confirmationId.String(),
		Company: Company{
			Name:    "MoneyBank",
			Address: "Kantstraße 123, 10623 Berlin, Germany",
			Phone:   "+49 30 8765 4321",
		},
		Customer:    customer,
		Transaction: transaction,
		Details:     details,
		Summary:     summary,
		TotalAmount: FormatAmount(total),
		DueAmount:   FormatAmount(total),
	}
}

func generateCustomer(rng *rand.Rand) Customer {
	first := firstNames[rng.Intn(len(firstNames))]
	last := lastNames[rng.Intn(len(lastNames))]
	domain := domains[rng.Intn(len(domains))]
	return Customer{
		Name:    first + " " + last,
		Address: fmt.Sprintf("Hauptstraße %d, %d Berlin, Germany", randInt(rng, 1, 200), randInt(rng, 10000, 99999)),
		Email:   fmt.Sprintf("%s.%s@%s", strings.ToLower(first[:1]), strings.ToLower(last), domain),
	}
}

func generateTransaction(rng *rand.Rand, now time.Time) Transaction {
	date := now.AddDate(0, 0, -randInt(rng, 1, 30))
	return Transaction{
		Date:              date.Format("02 January 2006"),
		Reference:         fmt.Sprintf("MB-TR-%s%d", date.Format("060102"), randInt(rng, 10, 99)),
		Currency:          "EUR",
		ClientCode:        fmt.Sprintf("MB-C%d", randInt(rng, 10000, 99999)),
		CommissionPercent: decimal.New(int64(randInt(rng, 5, 20)), -2).StringFixed(2),
		MinimumFee:        decimal.New(int64(randInt(rng, 495, 1295)), -2).StringFixed(2),
	}
}

// generateTrades picks distinct stocks and returns the trade lines with the gross amount, i.e. sells minus buys.
func generateTrades(rng *rand.Rand, n int) ([]Trade, decimal.Decimal) {
	if n > len(germanStocks) {
		n = len(germanStocks)
	}
	totalBuy := decimal.Zero
	totalSell := decimal.Zero
	trades := make([]Trade, 0, n)
	for _, idx := range rng.Perm(len(germanStocks))[:n] {
		s := germanStocks[idx]
		isBuy := rng.Intn(2) == 0
		lots := randInt(rng, 1, 3)
		shares := randInt(rng, 1, 5) * 25
		price := decimal.NewFromFloat(float64(s.minPrice) + rng.Float64()*float64(s.maxPrice-s.minPrice))
		amount := price.Mul(decimal.NewFromInt(int64(shares)))

		trade := Trade{
			Stock:  fmt.Sprintf("%s (%s)", s.name, s.symbol),
			Lots:   fmt.Sprint(lots),
			Shares: fmt.Sprint(shares),
			Price:  FormatAmount(price),
		}
		if isBuy {
			trade.BuyAmount = FormatAmount(amount)
			totalBuy = totalBuy.Add(amount)
		} else {
			trade.SellAmount = FormatAmount(amount)
			totalSell = totalSell.Add(amount)
		}
		trades = append(trades, trade)
	}
	return trades, totalSell.Sub(totalBuy)
}

func generateSummary(gross, commissionPercent, minimumFee decimal.Decimal) (Summary, decimal.Decimal, decimal.Decimal) {
	fee := gross.Abs().Mul(commissionPercent).Div(hundred)
	if fee.LessThan(minimumFee) {
		fee = minimumFee
	}
	vat := fee.Mul(vatRate)
	totalCharges := fee.Add(vat)
	withholdingTax := decimal.Zero
	if gross.IsPositive() {
		withholdingTax = gross.Mul(withholdingTaxRate)
	}
	return Summary{
		GrossAmount:     FormatAmount(gross),
		BrokerageFee:    FormatAmount(fee),
		VatBrokerageFee: FormatAmount(vat),
		TotalCharges:    FormatAmount(totalCharges),
		SalesTax:        FormatAmount(decimal.Zero),
		WithholdingTax:  FormatAmount(withholdingTax),
	}, totalCharges, withholdingTax
}

// FormatAmount rounds half away from zero to cents and uses German separators, e.g. 1234.565 => "1.234,57".
func FormatAmount(amount decimal.Decimal) string {
	fixed := amount.Round(2).StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "," + fracPart
}

// randInt returns an int in [min, max].
func randInt(rng *rand.Rand, min, max int) int {
	return min + rng.Intn(max-min+1)
}
