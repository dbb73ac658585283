package domain_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

func TestParsePaymentBehavior(t *testing.T) {
	cases := []struct {
		code    string
		kind    domain.PaymentKind
		periods []int
	}{
		{code: "00", kind: domain.PaymentKindCash},
		{code: "cash", kind: domain.PaymentKindCash},
		{code: "CARD_DEBIT", kind: domain.PaymentKindCardDebit},
		{code: "CARTDEB", kind: domain.PaymentKindCardDebit},
		{code: "CARD_CREDIT", kind: domain.PaymentKindCardCredit},
		{code: "CARTCRED", kind: domain.PaymentKindCardCredit},
		{code: "30", kind: domain.PaymentKindTerm, periods: []int{30}},
		{code: "30/60", kind: domain.PaymentKindTerm, periods: []int{30, 60}},
		{code: " 30-60-90 ", kind: domain.PaymentKindTerm, periods: []int{30, 60, 90}},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			got, err := domain.ParsePaymentBehavior(tc.code)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tc.kind {
				t.Fatalf("kind = %s, want %s", got.Kind, tc.kind)
			}
			if !reflect.DeepEqual(got.Periods, tc.periods) && len(tc.periods) > 0 {
				t.Fatalf("periods = %v, want %v", got.Periods, tc.periods)
			}
		})
	}
}

func TestParsePaymentBehavior_Invalid(t *testing.T) {
	for _, code := range []string{"", "   ", "PIX", "30/abc", "0", "30/0"} {
		t.Run(code, func(t *testing.T) {
			_, err := domain.ParsePaymentBehavior(code)
			if !errors.Is(err, domain.ErrInvalidPaymentCode) {
				t.Fatalf("expected ErrInvalidPaymentCode for %q, got %v", code, err)
			}
		})
	}
}

func TestPaymentBehaviorPeriodFor(t *testing.T) {
	b := domain.PaymentBehavior{Kind: domain.PaymentKindTerm, Periods: []int{30, 60}}
	want := []int{30, 60, 90, 120}
	for i, w := range want {
		if got := b.PeriodFor(i); got != w {
			t.Fatalf("PeriodFor(%d) = %d, want %d", i, got, w)
		}
	}

	single := domain.PaymentBehavior{Kind: domain.PaymentKindTerm, Periods: []int{30}}
	if got := single.PeriodFor(2); got != 90 {
		t.Fatalf("single period repeat = %d, want 90", got)
	}
}

func TestSaleItemValidate(t *testing.T) {
	ok := domain.SaleItem{SaleID: "s", ProductID: "p", Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ok.Subtotal(); !got.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("subtotal = %s", got)
	}

	bad := ok
	bad.UnitPrice = decimal.RequireFromString("-1")
	if err := bad.Validate(); !errors.Is(err, domain.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
}

func TestStatusFromLabelAndPage(t *testing.T) {
	if domain.StatusFromLabel("ABERTA") != domain.SaleStatusOpen {
		t.Fatal("ABERTA must map to OPEN")
	}
	if domain.StatusFromLabel("FECHADA") != domain.SaleStatusClosed || domain.StatusFromLabel("") != domain.SaleStatusClosed {
		t.Fatal("any other label must map to CLOSED")
	}

	p := domain.Page{Number: -1, Size: 1000}.Normalize()
	if p.Number != 0 || p.Size != domain.MaxPageSize {
		t.Fatalf("unexpected normalized page %+v", p)
	}
	if (domain.Page{}).Normalize().Size != domain.DefaultPageSize {
		t.Fatal("expected default page size")
	}
	if (domain.Page{Number: 2, Size: 10}).Offset() != 20 {
		t.Fatal("unexpected offset")
	}
}

func TestSettlementForTitle(t *testing.T) {
	if s, ok := domain.SettlementForTitle(domain.Title{Type: domain.TitleTypeCash}); !ok || s != domain.SettlementCash {
		t.Fatalf("DIN must settle as cash, got %q", s)
	}
	if s, ok := domain.SettlementForTitle(domain.Title{Type: domain.TitleTypeCardCredit}); !ok || s != domain.SettlementCard {
		t.Fatalf("CARTCRED must settle as card, got %q", s)
	}
	if _, ok := domain.SettlementForTitle(domain.Title{Type: "BOLETO"}); ok {
		t.Fatal("generic title must not resolve a settlement")
	}
}

func TestIsSaleEvent(t *testing.T) {
	for _, eventType := range []string{
		domain.EventSaleOpened,
		domain.EventSaleItemAdded,
		domain.EventSaleItemRemoved,
		domain.EventSaleClosed,
	} {
		if !domain.IsSaleEvent(eventType) {
			t.Errorf("IsSaleEvent(%q) = false", eventType)
		}
	}
	if domain.IsSaleEvent("sale.closed") || domain.IsSaleEvent("") {
		t.Error("unexpected sale event type accepted")
	}
}
