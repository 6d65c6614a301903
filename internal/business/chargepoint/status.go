package chargepoint

// Status 充电桩顶层状态
type Status string

const (
	StatusDisconnected  Status = "Disconnected"
	StatusConnecting    Status = "Connecting"
	StatusConnected     Status = "Connected"
	StatusAuthorized    Status = "Authorized"
	StatusInTransaction Status = "InTransaction"
	StatusError         Status = "Error"
)

// AllStatuses 所有状态，用于指标清零
var AllStatuses = []Status{
	StatusDisconnected,
	StatusConnecting,
	StatusConnected,
	StatusAuthorized,
	StatusInTransaction,
	StatusError,
}

func (s Status) String() string {
	return string(s)
}

// IsValid 是否为已知状态
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func statusLabels() []string {
	labels := make([]string, len(AllStatuses))
	for i, s := range AllStatuses {
		labels[i] = string(s)
	}
	return labels
}
