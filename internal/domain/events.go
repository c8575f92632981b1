package domain

import "encoding/json"

type EventKind string

const (
	EventStatus             EventKind = "status"
	EventTick               EventKind = "tick"
	EventBalance            EventKind = "balance"
	EventAccountInfoUpdated EventKind = "account_info_updated"
	EventMT5Accounts        EventKind = "mt5_login_list"
	EventContractUpdate     EventKind = "contract_update"
	EventAuthorize          EventKind = "authorize"
	EventProposal           EventKind = "proposal"
	EventBuy                EventKind = "buy"
	EventError              EventKind = "error"
)

// Event is delivered to handlers registered with On. Only the field matching
// Kind is set; Raw carries the undecoded frame for response kinds.
type Event struct {
	Kind     EventKind
	Status   ConnectionStatus
	Tick     Tick
	Balance  Balance
	Account  *AccountInfo
	MT5      []MT5Account
	Contract *ContractUpdate
	Raw      json.RawMessage
	Err      error
}

type EventHandler func(Event)

type HandlerID uint64
