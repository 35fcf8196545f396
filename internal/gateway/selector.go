package gateway

// SelectionInput is everything the selection policy looks at. The health
// snapshot comes from the periodic health refresh; selection itself never
// performs I/O.
type SelectionInput struct {
	Currency string
	Country  string
	Amount   float64
	HasPhone bool
	Health   map[string]Health
}

// largeInternationalAmount is the threshold above which a foreign-currency
// payment prefers the redirect wallet over the card intent flow.
const largeInternationalAmount = 50000

// SelectGateways returns the ordered candidate list for a payment. The
// default provider for the payer's country comes first, amount heuristics
// reorder international payments, and anything whose last health probe was
// not healthy is filtered out.
func SelectGateways(in SelectionInput) []string {
	var candidates []string

	domestic := in.Country == "KE" || in.Currency == "KES"
	switch {
	case domestic && in.HasPhone:
		candidates = []string{NameMpesa, NameCard, NamePayPal}
	case domestic:
		candidates = []string{NameCard, NamePayPal}
	case in.Amount >= largeInternationalAmount:
		candidates = []string{NamePayPal, NameCard}
	default:
		candidates = []string{NameCard, NamePayPal}
	}

	healthy := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if in.Health[name] == HealthHealthy {
			healthy = append(healthy, name)
		}
	}
	return healthy
}
