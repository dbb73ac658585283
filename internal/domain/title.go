package domain

// TitleType: короткий код типа титула.
type TitleType string

const (
	// TitleTypeCash: наличные (DIN).
	TitleTypeCash TitleType = "DIN"
	// TitleTypeCardDebit: дебетовая карта.
	TitleTypeCardDebit TitleType = "CARTDEB"
	// TitleTypeCardCredit: кредитная карта.
	TitleTypeCardCredit TitleType = "CARTCRED"
)

// Title: платёжный инструмент, на который ссылается каждая часть оплаты.
type Title struct {
	ID   string
	Name string
	Type TitleType
}

// IsCash сообщает, что титул расчётный наличными.
func (t Title) IsCash() bool {
	return t.Type == TitleTypeCash
}

// IsCard сообщает, что титул карточный.
func (t Title) IsCard() bool {
	return t.Type == TitleTypeCardDebit || t.Type == TitleTypeCardCredit
}

// Settlement: способ расчёта для оплаты кодом кассы.
type Settlement string

const (
	// SettlementUnspecified: определить по первому титулу запроса.
	SettlementUnspecified Settlement = ""
	// SettlementCash: расчёт через кассовую смену.
	SettlementCash Settlement = "cash"
	// SettlementCard: расчёт через карточный реестр.
	SettlementCard Settlement = "card"
	// SettlementTerm: рассрочка.
	SettlementTerm Settlement = "term"
)

// SettlementForTitle определяет способ расчёта по типу титула.
func SettlementForTitle(t Title) (Settlement, bool) {
	switch {
	case t.IsCash():
		return SettlementCash, true
	case t.IsCard():
		return SettlementCard, true
	}
	return SettlementUnspecified, false
}
