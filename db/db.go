package db

import "time"

// Linhas do Postgres. Toda entidade de tenant carrega IDEmpresa e as queries
// sempre filtram por ela.

type Empresa struct {
	ID               string    `json:"id"`
	Nome             string    `json:"nome"`
	StatusAssinatura string    `json:"statusAssinatura"` // trial | ativa | inadimplente | cancelada
	IDPlano          *string   `json:"idPlano,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Perfil struct {
	ID        string    `json:"id"`
	Nome      string    `json:"nome"`
	Email     string    `json:"email"`
	SenhaHash string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type Membro struct {
	ID           string    `json:"id"`
	IDPerfil     string    `json:"idPerfil"`
	IDEmpresa    string    `json:"idEmpresa"`
	Funcao       string    `json:"funcao"` // admin | agente
	EhSuperadmin bool      `json:"ehSuperadmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Conexao struct {
	ID            string    `json:"id"`
	IDEmpresa     string    `json:"idEmpresa"`
	Numero        string    `json:"numero"`
	PhoneNumberID string    `json:"phoneNumberId"`
	WabaID        string    `json:"wabaId"`
	AccessToken   string    `json:"-"`
	Status        string    `json:"status"` // ativa | desconectada
	CreatedAt     time.Time `json:"createdAt"`
}

type Contato struct {
	ID        string    `json:"id"`
	IDEmpresa string    `json:"idEmpresa"`
	Telefone  string    `json:"telefone"`
	Nome      string    `json:"nome"`
	CreatedAt time.Time `json:"createdAt"`
}

type Mensagem struct {
	ID          string    `json:"id"`
	IDEmpresa   string    `json:"idEmpresa"`
	IDContato   string    `json:"idContato"`
	IDConexao   string    `json:"idConexao"`
	Direcao     string    `json:"direcao"` // entrada | saida
	Status      string    `json:"status"`  // recebido | enviado | entregue | lido | falha
	Tipo        string    `json:"tipo"`    // text | image | audio | video | document | unsupported
	Conteudo    string    `json:"conteudo"`
	WaMessageID *string   `json:"waMessageId,omitempty"`
	MediaURL    *string   `json:"mediaUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Campanha struct {
	ID         string     `json:"id"`
	IDEmpresa  string     `json:"idEmpresa"`
	IDConexao  string     `json:"idConexao"`
	Nome       string     `json:"nome"`
	Template   string     `json:"template"`
	Idioma     string     `json:"idioma"`
	Status     string     `json:"status"` // draft | sending | completed
	Total      int        `json:"total"`
	Enviados   int        `json:"enviados"`
	Falhas     int        `json:"falhas"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type Destinatario struct {
	ID          string     `json:"id"`
	IDCampanha  string     `json:"idCampanha"`
	IDEmpresa   string     `json:"idEmpresa"`
	Telefone    string     `json:"telefone"`
	Nome        string     `json:"nome"`
	Status      string     `json:"status"` // pending | sending | sent | failed
	WaMessageID *string    `json:"waMessageId,omitempty"`
	Erro        *string    `json:"erro,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
}

type Plano struct {
	ID              string    `json:"id"`
	Nome            string    `json:"nome"`
	PrecoCentavos   int64     `json:"precoCentavos"`
	LimiteMensagens int       `json:"limiteMensagens"`
	LimiteConexoes  int       `json:"limiteConexoes"`
	Ativo           bool      `json:"ativo"`
	CreatedAt       time.Time `json:"createdAt"`
}

type Fatura struct {
	ID            string    `json:"id"`
	IDEmpresa     string    `json:"idEmpresa"`
	Provedor      string    `json:"provedor"` // kirvano | efi | pagarme
	Evento        string    `json:"evento"`
	Referencia    string    `json:"referencia"`
	ValorCentavos int64     `json:"valorCentavos"`
	CreatedAt     time.Time `json:"createdAt"`
}
