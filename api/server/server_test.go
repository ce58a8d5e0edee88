package server

import (
	"testing"

	"github.com/Dcadv789/scalazap/db"
)

func TestChooseMembro(t *testing.T) {
	membros := []db.Membro{
		{ID: "m1", IDPerfil: "p1", IDEmpresa: "emp-a", Funcao: "admin"},
		{ID: "m2", IDPerfil: "p1", IDEmpresa: "emp-b", Funcao: "agente"},
	}

	m, ok := ChooseMembro(membros, "")
	if !ok || m.ID != "m1" {
		t.Fatalf("sem header: got %+v, %v; want m1", m, ok)
	}

	m, ok = ChooseMembro(membros, "emp-b")
	if !ok || m.ID != "m2" {
		t.Fatalf("header emp-b: got %+v, %v; want m2", m, ok)
	}

	if _, ok := ChooseMembro(membros, "emp-alheia"); ok {
		t.Fatal("empresa fora das associações não pode ser escolhida")
	}

	if _, ok := ChooseMembro(nil, ""); ok {
		t.Fatal("sem associações não há membro ativo")
	}
}

func TestSuperadminOf(t *testing.T) {
	membros := []db.Membro{
		{ID: "m1", IDEmpresa: "emp-a"},
		{ID: "m2", IDEmpresa: "emp-b", EhSuperadmin: true},
	}
	if got := superadminOf(membros); got == nil || got.ID != "m2" {
		t.Fatalf("superadminOf = %+v, want m2", got)
	}
	if got := superadminOf(membros[:1]); got != nil {
		t.Fatalf("superadminOf sem superadmin = %+v, want nil", got)
	}
}
