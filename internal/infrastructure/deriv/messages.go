package deriv

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitos/tick_trader/internal/domain"
)

// APIError is the error object the API attaches to a rejected frame.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsBenign reports the "unrecognised request" class the API emits during
// resubscription races.
func (e *APIError) IsBenign() bool {
	return e.Code == "UnrecognisedRequest" || strings.HasPrefix(e.Message, "Unrecognised request")
}

// envelope holds the routing fields every inbound frame carries.
type envelope struct {
	MsgType string    `json:"msg_type"`
	ReqID   *int64    `json:"req_id,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// flexID accepts ids sent either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type tickMessage struct {
	Tick *struct {
		Symbol string  `json:"symbol"`
		Epoch  int64   `json:"epoch"`
		Quote  float64 `json:"quote"`
		ID     flexID  `json:"id"`
	} `json:"tick"`
}

type authorizeMessage struct {
	Authorize *struct {
		LoginID   string  `json:"loginid"`
		Balance   float64 `json:"balance"`
		Currency  string  `json:"currency"`
		Email     string  `json:"email"`
		FullName  string  `json:"fullname"`
		IsVirtual int     `json:"is_virtual"`
	} `json:"authorize"`
}

type balanceMessage struct {
	Balance *struct {
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
		LoginID  string  `json:"loginid"`
	} `json:"balance"`
}

type mt5ListMessage struct {
	List []domain.MT5Account `json:"mt5_login_list"`
}

type proposalMessage struct {
	Proposal *struct {
		ID       string  `json:"id"`
		AskPrice float64 `json:"ask_price"`
		Payout   float64 `json:"payout"`
		Spot     float64 `json:"spot"`
		Longcode string  `json:"longcode"`
	} `json:"proposal"`
}

type buyMessage struct {
	Buy *struct {
		ContractID    flexID  `json:"contract_id"`
		TransactionID flexID  `json:"transaction_id"`
		BuyPrice      float64 `json:"buy_price"`
		Payout        float64 `json:"payout"`
		StartTime     int64   `json:"start_time"`
		Longcode      string  `json:"longcode"`
	} `json:"buy"`
}

// openContract mirrors proposal_open_contract. Pointers mark the fields whose
// presence is checked before a settlement is accepted.
type openContract struct {
	ContractID   *flexID  `json:"contract_id"`
	ContractType string   `json:"contract_type"`
	Status       *string  `json:"status"`
	IsSold       *int     `json:"is_sold"`
	BuyPrice     *float64 `json:"buy_price"`
	SellPrice    *float64 `json:"sell_price"`
	Profit       *float64 `json:"profit"`
	Payout       float64  `json:"payout"`
	EntryTick    float64  `json:"entry_tick"`
	ExitTick     float64  `json:"exit_tick"`
	SellSpot     float64  `json:"sell_spot"`
	Underlying   string   `json:"underlying"`
	TickCount    int      `json:"tick_count"`
}

type openContractMessage struct {
	Contract *openContract `json:"proposal_open_contract"`
}

type echoMessage struct {
	Echo struct {
		ContractID flexID `json:"contract_id"`
	} `json:"echo_req"`
}

// echoContractID returns the contract_id the request being answered named.
func echoContractID(raw []byte) string {
	var m echoMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	return string(m.Echo.ContractID)
}

func decodeTick(raw []byte) (domain.Tick, error) {
	var m tickMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Tick{}, err
	}
	if m.Tick == nil || m.Tick.Symbol == "" {
		return domain.Tick{}, fmt.Errorf("tick frame without tick body")
	}
	return domain.Tick{
		Symbol: m.Tick.Symbol,
		Epoch:  m.Tick.Epoch,
		Quote:  m.Tick.Quote,
		ID:     string(m.Tick.ID),
	}, nil
}

func decodeAuthorize(raw []byte) (*domain.AccountInfo, error) {
	var m authorizeMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.Authorize == nil {
		return nil, fmt.Errorf("authorize frame without authorize body")
	}
	a := m.Authorize
	return &domain.AccountInfo{
		LoginID:   a.LoginID,
		Balance:   a.Balance,
		Currency:  a.Currency,
		Email:     a.Email,
		FullName:  a.FullName,
		IsVirtual: a.IsVirtual != 0,
	}, nil
}

func decodeBalance(raw []byte) (domain.Balance, error) {
	var m balanceMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Balance{}, err
	}
	if m.Balance == nil {
		return domain.Balance{}, fmt.Errorf("balance frame without balance body")
	}
	return domain.Balance{
		Balance:  m.Balance.Balance,
		Currency: m.Balance.Currency,
		LoginID:  m.Balance.LoginID,
	}, nil
}

func decodeMT5List(raw []byte) ([]domain.MT5Account, error) {
	var m mt5ListMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.List == nil {
		return []domain.MT5Account{}, nil
	}
	return m.List, nil
}

func decodeProposal(raw []byte) (*domain.Proposal, error) {
	var m proposalMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.Proposal == nil || m.Proposal.ID == "" {
		return nil, fmt.Errorf("proposal frame without proposal id")
	}
	p := m.Proposal
	return &domain.Proposal{
		ID:       p.ID,
		AskPrice: p.AskPrice,
		Payout:   p.Payout,
		Spot:     p.Spot,
		Longcode: p.Longcode,
	}, nil
}

func decodeBuy(raw []byte) (*domain.Contract, error) {
	var m buyMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.Buy == nil || m.Buy.ContractID == "" {
		return nil, fmt.Errorf("buy frame without contract id")
	}
	b := m.Buy
	return &domain.Contract{
		ContractID:    string(b.ContractID),
		TransactionID: string(b.TransactionID),
		BuyPrice:      b.BuyPrice,
		Payout:        b.Payout,
		StartTime:     b.StartTime,
		Longcode:      b.Longcode,
	}, nil
}

// decodeContractUpdate validates a proposal_open_contract frame. A sold
// contract must carry contract_id, buy_price and either profit or sell_price.
func decodeContractUpdate(raw []byte) (*domain.ContractUpdate, error) {
	var m openContractMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &domain.SettlementError{Reason: err.Error()}
	}
	c := m.Contract
	if c == nil {
		return nil, &domain.SettlementError{Reason: "missing proposal_open_contract"}
	}
	if c.ContractID == nil || *c.ContractID == "" {
		return nil, &domain.SettlementError{Reason: "missing contract_id"}
	}

	update := &domain.ContractUpdate{
		ContractID:   string(*c.ContractID),
		ContractType: c.ContractType,
		IsSold:       c.IsSold != nil && *c.IsSold != 0,
		Payout:       c.Payout,
		EntryTick:    c.EntryTick,
		ExitTick:     c.ExitTick,
		Underlying:   c.Underlying,
		TickCount:    c.TickCount,
	}
	if c.Status != nil {
		update.Status = *c.Status
	}
	if update.ExitTick == 0 {
		update.ExitTick = c.SellSpot
	}
	if c.BuyPrice != nil {
		update.BuyPrice = *c.BuyPrice
	}
	if c.SellPrice != nil {
		update.SellPrice = *c.SellPrice
	}

	if !update.Settled() {
		return update, nil
	}

	if c.BuyPrice == nil {
		return nil, &domain.SettlementError{ContractID: update.ContractID, Reason: "sold without buy_price"}
	}
	switch {
	case c.Profit != nil:
		update.Profit = *c.Profit
	case c.SellPrice != nil:
		update.Profit = decimal.NewFromFloat(*c.SellPrice).Sub(decimal.NewFromFloat(*c.BuyPrice)).InexactFloat64()
	default:
		return nil, &domain.SettlementError{ContractID: update.ContractID, Reason: "sold without profit or sell_price"}
	}
	return update, nil
}
