package protocol

// OCPP协议版本常量
const (
	// OCPP_VERSION_1_6 WebSocket 子协议名
	OCPP_VERSION_1_6 = "ocpp1.6"

	// 默认版本
	DEFAULT_VERSION = OCPP_VERSION_1_6
)

// 关闭码
const (
	// CloseCodeNormal 主动断开使用的关闭码，收到该码视为正常断开
	CloseCodeNormal = 3001
	// CloseCodeNoStatus 对端未给出关闭码
	CloseCodeNoStatus = 1005
	// CloseCodeAbnormal 连接异常中断
	CloseCodeAbnormal = 1006
)

// 版本映射表 - 处理各种格式的版本号
var VersionMapping = map[string]string{
	"1.6":     OCPP_VERSION_1_6,
	"ocpp1.6": OCPP_VERSION_1_6,
	"OCPP1.6": OCPP_VERSION_1_6,
}

// NormalizeVersion 规范化协议版本
func NormalizeVersion(version string) string {
	if normalized, exists := VersionMapping[version]; exists {
		return normalized
	}
	return ""
}

// IsVersionSupported 检查版本是否支持
func IsVersionSupported(version string) bool {
	return NormalizeVersion(version) == OCPP_VERSION_1_6
}

// Subprotocols 握手时声明的子协议列表
func Subprotocols() []string {
	return []string{DEFAULT_VERSION}
}

// IsNormalClose 判断关闭码是否表示主动断开
func IsNormalClose(code int) bool {
	return code == CloseCodeNormal
}
