package bankcsv_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/luisfernandobanegasro/parcial/internal/reconcile/bankcsv"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestParser_BNB(t *testing.T) {
	csv := `Banco Nacional de Bolivia;Extracto de cuenta
Cuenta;1000123456 - BOB
Periodo;01/01/2024 al 31/01/2024

Fecha;Descripción;Referencia;Débito;Crédito;Saldo
15/01/2024;TRANSFERENCIA RECIBIDA JUAN PEREZ;TRX-00123;;150,00;10.150,00
16/01/2024;PAGO SERVICIOS ELFEC;;320,50;;9.829,50
17/01/2024;TRANSF. DE MARIA LOPEZ;;;1.200,00;11.029,50
Total;;;;;
`

	stmt, err := bankcsv.NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, stmt.Lines, 3)

	assert.Equal(t, "bnb", stmt.Profile)
	assert.Equal(t, "UTF-8", stmt.Charset)

	first := stmt.Lines[0]
	assert.Equal(t, 5, first.Row)
	assert.Equal(t, date(2024, 1, 15), first.Date)
	assert.Equal(t, "TRX-00123", first.Reference)
	assert.Equal(t, "150", first.Amount.String())
	assert.True(t, first.Credit)

	assert.False(t, stmt.Lines[1].Credit)
	assert.Equal(t, "320.5", stmt.Lines[1].Amount.String())

	assert.Equal(t, "1200", stmt.Lines[2].Amount.String())
	assert.Empty(t, stmt.Lines[2].Reference)
}

func TestParser_UnionLatin1(t *testing.T) {
	csv := "Fecha;Concepto;Nro. Documento;Monto\n" +
		"2024-02-03;Depósito en cuenta;ABC-991;1,234.56\n" +
		"2024-02-04;Comisión mantenimiento;;-15.00\n"

	latin1, err := charmap.Windows1252.NewEncoder().String(csv)
	require.NoError(t, err)

	stmt, err := bankcsv.NewParser().Parse(strings.NewReader(latin1))
	require.NoError(t, err)
	require.Len(t, stmt.Lines, 2)

	assert.Equal(t, "union", stmt.Profile)
	assert.Equal(t, 2, stmt.Lines[0].Row, "the header is row 1")
	assert.Equal(t, 3, stmt.Lines[1].Row)
	assert.Equal(t, "Depósito en cuenta", stmt.Lines[0].Description)
	assert.Equal(t, "1234.56", stmt.Lines[0].Amount.String())
	assert.True(t, stmt.Lines[0].Credit)
	assert.Equal(t, "ABC-991", stmt.Lines[0].Reference)

	assert.False(t, stmt.Lines[1].Credit)
	assert.Equal(t, "15", stmt.Lines[1].Amount.String())
}

func TestParser_MercantilCommaDelimited(t *testing.T) {
	csv := `Fecha Transacción,Glosa,Importe
"05/03/2024 10:15","ABONO TRANSF REF: TRX-7781 DPTO 4B","450.00"
"06/03/2024 09:00","ABONO SIN REFERENCIA","80.00"
`

	stmt, err := bankcsv.NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, stmt.Lines, 2)

	assert.Equal(t, "mercantil", stmt.Profile)
	assert.Equal(t, date(2024, 3, 5), stmt.Lines[0].Date)
	assert.Equal(t, "TRX-7781", stmt.Lines[0].Reference)
	assert.Empty(t, stmt.Lines[1].Reference)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want string
	}{
		{
			name: "unknown layout",
			csv:  "Date;Text;Value\n01/01/2024;x;1,00\n",
			want: "no matching bank format",
		},
		{
			name: "row without description",
			csv:  "Fecha;Concepto;Nro. Documento;Monto\n01/01/2024;;A1;10,00\n",
			want: "row 2: missing description",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bankcsv.NewParser().Parse(strings.NewReader(tt.csv))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
