package ocpp16

// 充电桩 -> 中央系统

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
}

// BootNotificationResponse 启动通知响应
type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status"`
	CurrentTime *DateTime          `json:"currentTime,omitempty"`
	Interval    int                `json:"interval"`
}

// HeartbeatRequest 心跳请求，负载为空对象
type HeartbeatRequest struct{}

// HeartbeatResponse 心跳响应
type HeartbeatResponse struct {
	CurrentTime *DateTime `json:"currentTime,omitempty"`
}

// AuthorizeRequest 授权请求
type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

// AuthorizeResponse 授权响应
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// StartTransactionRequest 开始交易请求，ReservationId 为 0 时不上送
type StartTransactionRequest struct {
	ConnectorId   int      `json:"connectorId"`
	IdTag         string   `json:"idTag"`
	MeterStart    int      `json:"meterStart"`
	ReservationId int      `json:"reservationId,omitempty"`
	Timestamp     DateTime `json:"timestamp"`
}

// StartTransactionResponse 开始交易响应
// TransactionId 为空表示该结果不携带交易号
type StartTransactionResponse struct {
	IdTagInfo     *IdTagInfo `json:"idTagInfo,omitempty"`
	TransactionId *int       `json:"transactionId,omitempty"`
}

// StopTransactionRequest 停止交易请求，IdTag 为空时不上送
type StopTransactionRequest struct {
	IdTag         string   `json:"idTag,omitempty"`
	MeterStop     int      `json:"meterStop"`
	Timestamp     DateTime `json:"timestamp"`
	TransactionId int      `json:"transactionId"`
}

// StopTransactionResponse 停止交易响应
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// MeterValuesRequest 电表值请求
type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

// StatusNotificationRequest 状态通知请求
type StatusNotificationRequest struct {
	ConnectorId int                  `json:"connectorId"`
	ErrorCode   ChargePointErrorCode `json:"errorCode"`
	Status      ConnectorStatus      `json:"status"`
	Timestamp   DateTime             `json:"timestamp"`
}

// 中央系统 -> 充电桩，validate 标签由 validation 包校验

// ResetRequest 重置请求
type ResetRequest struct {
	Type ResetType `json:"type" validate:"required,ocpp_reset_type"`
}

// ResetResponse 重置响应
type ResetResponse struct {
	Status ResetStatus `json:"status"`
}

// RemoteStartTransactionRequest 远程启动请求
type RemoteStartTransactionRequest struct {
	ConnectorId *int   `json:"connectorId,omitempty" validate:"omitempty,min=1"`
	IdTag       string `json:"idTag" validate:"required,ocpp_id_tag"`
}

// RemoteStopTransactionRequest 远程停止请求
type RemoteStopTransactionRequest struct {
	TransactionId *int `json:"transactionId" validate:"required"`
}

// RemoteStartStopResponse 远程启停响应
type RemoteStartStopResponse struct {
	Status RemoteStartStopStatus `json:"status"`
}

// TriggerMessageRequest 触发消息请求
type TriggerMessageRequest struct {
	RequestedMessage MessageTrigger `json:"requestedMessage" validate:"required"`
	ConnectorId      *int           `json:"connectorId,omitempty" validate:"omitempty,min=0"`
}

// TriggerMessageResponse 触发消息响应
type TriggerMessageResponse struct {
	Status TriggerMessageStatus `json:"status"`
}

// ChangeAvailabilityRequest 可用性变更请求
type ChangeAvailabilityRequest struct {
	ConnectorId int              `json:"connectorId" validate:"min=0"`
	Type        AvailabilityType `json:"type" validate:"required,ocpp_availability_type"`
}

// ChangeAvailabilityResponse 可用性变更响应
type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status"`
}

// UnlockConnectorRequest 解锁请求
type UnlockConnectorRequest struct {
	ConnectorId int `json:"connectorId" validate:"min=0"`
}

// UnlockConnectorResponse 解锁响应
type UnlockConnectorResponse struct {
	Status UnlockStatus `json:"status"`
}

// GetConfigurationRequest 获取配置请求
type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

// GetConfigurationResponse 获取配置响应
type GetConfigurationResponse struct {
	ConfigurationKey []KeyValue `json:"configurationKey"`
	UnknownKey       []string   `json:"unknownKey,omitempty"`
}
