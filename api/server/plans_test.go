package server

import "testing"

func TestNormalizePlan(t *testing.T) {
	p, err := NormalizePlan(PlanInput{
		Nome:            "  Pro  ",
		Preco:           199.9,
		LimiteMensagens: float64(10000),
		LimiteConexoes:  "3",
		Ativo:           "sim",
	})
	if err != nil {
		t.Fatalf("NormalizePlan: %v", err)
	}
	if p.Nome != "Pro" {
		t.Errorf("Nome = %q", p.Nome)
	}
	if p.PrecoCentavos != 19990 {
		t.Errorf("PrecoCentavos = %d, want 19990", p.PrecoCentavos)
	}
	if p.LimiteMensagens != 10000 || p.LimiteConexoes != 3 {
		t.Errorf("limites = %d/%d", p.LimiteMensagens, p.LimiteConexoes)
	}
	if !p.Ativo {
		t.Error("Ativo should be true")
	}
}

func TestNormalizePlanStringPrice(t *testing.T) {
	// painel manda preço como string com vírgula
	p, err := NormalizePlan(PlanInput{Nome: "Basico", Preco: "49,90"})
	if err != nil {
		t.Fatalf("NormalizePlan: %v", err)
	}
	if p.PrecoCentavos != 4990 {
		t.Errorf("PrecoCentavos = %d, want 4990", p.PrecoCentavos)
	}
	if p.LimiteConexoes != 1 {
		t.Errorf("LimiteConexoes default = %d, want 1", p.LimiteConexoes)
	}
	if !p.Ativo {
		t.Error("Ativo default should be true")
	}
}

func TestNormalizePlanRounding(t *testing.T) {
	// 0.1+0.2 em float não pode virar 29 centavos
	p, err := NormalizePlan(PlanInput{Nome: "X", Preco: 0.30000000000000004})
	if err != nil {
		t.Fatalf("NormalizePlan: %v", err)
	}
	if p.PrecoCentavos != 30 {
		t.Errorf("PrecoCentavos = %d, want 30", p.PrecoCentavos)
	}
}

func TestNormalizePlanErrors(t *testing.T) {
	cases := []struct {
		name string
		in   PlanInput
	}{
		{"nome vazio", PlanInput{Preco: 10}},
		{"preco negativo", PlanInput{Nome: "X", Preco: -1.0}},
		{"preco nao numerico", PlanInput{Nome: "X", Preco: "dez reais"}},
		{"ativo invalido", PlanInput{Nome: "X", Preco: 10.0, Ativo: "talvez"}},
		{"limite invalido", PlanInput{Nome: "X", Preco: 10.0, LimiteMensagens: "muitas"}},
		{"limite mensagens negativo", PlanInput{Nome: "X", Preco: 10.0, LimiteMensagens: float64(-5)}},
		{"limite conexoes negativo", PlanInput{Nome: "X", Preco: 10.0, LimiteConexoes: "-1"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := NormalizePlan(c.in); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestCoerceBoolPortuguese(t *testing.T) {
	for _, s := range []string{"sim", "true", "1"} {
		if b, err := coerceBool(s); err != nil || !b {
			t.Errorf("coerceBool(%q) = %v, %v", s, b, err)
		}
	}
	for _, s := range []string{"nao", "não", "false", "0"} {
		if b, err := coerceBool(s); err != nil || b {
			t.Errorf("coerceBool(%q) = %v, %v", s, b, err)
		}
	}
}
