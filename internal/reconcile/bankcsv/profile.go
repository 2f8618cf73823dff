package bankcsv

// amountMode determines how amounts are extracted from a row.
type amountMode int

const (
	// amountSingle means one signed column, e.g. "Monto" with "-10,00".
	amountSingle amountMode = iota
	// amountSplit means separate debit and credit columns.
	amountSplit
)

// Profile describes the column layout of one bank's statement export.
// Supporting another bank is adding a Profile to profiles.
type Profile struct {
	Name       string
	DateCol    string
	DescCol    string
	RefCol     string // optional; the reference is then read from the description
	AmountMode amountMode
	AmountCol  string // used when AmountMode == amountSingle
	DebitCol   string // used when AmountMode == amountSplit
	CreditCol  string // used when AmountMode == amountSplit
}

// requiredCols returns the column names that must be present for this profile to match.
func (p Profile) requiredCols() []string {
	cols := []string{p.DateCol, p.DescCol}

	if p.RefCol != "" {
		cols = append(cols, p.RefCol)
	}

	switch p.AmountMode {
	case amountSingle:
		cols = append(cols, p.AmountCol)
	case amountSplit:
		cols = append(cols, p.DebitCol, p.CreditCol)
	}

	return cols
}

// profiles is tried in order during detection; more specific layouts come first.
var profiles = []Profile{
	{
		Name:       "bnb",
		DateCol:    "Fecha",
		DescCol:    "Descripción",
		RefCol:     "Referencia",
		AmountMode: amountSplit,
		DebitCol:   "Débito",
		CreditCol:  "Crédito",
	},
	{
		Name:       "union",
		DateCol:    "Fecha",
		DescCol:    "Concepto",
		RefCol:     "Nro. Documento",
		AmountMode: amountSingle,
		AmountCol:  "Monto",
	},
	{
		Name:       "mercantil",
		DateCol:    "Fecha Transacción",
		DescCol:    "Glosa",
		AmountMode: amountSingle,
		AmountCol:  "Importe",
	},
}
