package domain

type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

type AccountType string

const (
	AccountDemo AccountType = "demo"
	AccountReal AccountType = "real"
)

// AccountInfo is what the API returns on a successful authorization.
type AccountInfo struct {
	LoginID     string       `json:"loginid"`
	Balance     float64      `json:"balance"`
	Currency    string       `json:"currency"`
	Email       string       `json:"email"`
	FullName    string       `json:"fullname,omitempty"`
	IsVirtual   bool         `json:"is_virtual"`
	MT5Accounts []MT5Account `json:"mt5_accounts,omitempty"`
}

func (a AccountInfo) AccountType() AccountType {
	if a.IsVirtual {
		return AccountDemo
	}
	return AccountReal
}

type MT5Account struct {
	AccountType    string  `json:"account_type"`
	Balance        float64 `json:"balance"`
	Currency       string  `json:"currency"`
	DisplayLogin   string  `json:"display_login"`
	Login          string  `json:"login"`
	MT5AccountType string  `json:"mt5_account_type"`
}

// Balance is a pushed balance update.
type Balance struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
	LoginID  string  `json:"loginid"`
}

// Session is the state of one connection lifetime.
type Session struct {
	Status      ConnectionStatus `json:"status"`
	AccountID   string           `json:"account_id"`
	Balance     float64          `json:"balance"`
	Currency    string           `json:"currency"`
	IsDemo      bool             `json:"is_demo"`
	MT5Accounts []MT5Account     `json:"mt5_accounts,omitempty"`
}

func (s Session) AccountType() AccountType {
	if s.IsDemo {
		return AccountDemo
	}
	return AccountReal
}
