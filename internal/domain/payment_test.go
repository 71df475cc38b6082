package domain

import "testing"

func TestPaymentMethodKinds(t *testing.T) {
	var methods = []PaymentMethod{
		CardPayment{Card: CardDetails{HolderName: "Alice", Last4: "4242"}},
		PickupPayment{Name: "Bob"},
	}
	want := []PaymentKind{PaymentKindCard, PaymentKindPickup}

	for i, method := range methods {
		if method.Kind() != want[i] {
			t.Fatalf("method %d: kind %q, want %q", i, method.Kind(), want[i])
		}
	}
}

func TestMaskCardNumber(t *testing.T) {
	cases := map[string]string{
		"4111111111111111": "1111",
		" 123456789012 ":   "9012",
		"123":              "123",
	}
	for in, want := range cases {
		if got := MaskCardNumber(in); got != want {
			t.Fatalf("MaskCardNumber(%q) = %q, want %q", in, got, want)
		}
	}
}
