package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxIdTagLength 协议规定的 idTag 最大长度
const MaxIdTagLength = 20

var chargePointIDPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+$`)

// Validator OCPP负载验证器
type Validator struct {
	validate *validator.Validate
}

// ValidationError 验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error 实现error接口
func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors 验证错误集合
type ValidationErrors []ValidationError

// Error 实现error接口
func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// NewValidator 创建新的验证器
func NewValidator() *Validator {
	validate := validator.New()

	// 注册自定义验证规则
	registerCustomValidations(validate)

	return &Validator{
		validate: validate,
	}
}

// ValidateStruct 验证结构体
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validatorErrors validator.ValidationErrors
	if !errors.As(err, &validatorErrors) {
		return err
	}

	validationErrors := make(ValidationErrors, 0, len(validatorErrors))
	for _, validatorError := range validatorErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   validatorError.Field(),
			Tag:     validatorError.Tag(),
			Value:   fmt.Sprintf("%v", validatorError.Value()),
			Message: getErrorMessage(validatorError),
		})
	}
	return validationErrors
}

// registerCustomValidations 注册自定义验证规则
func registerCustomValidations(validate *validator.Validate) {
	validate.RegisterValidation("ocpp_id_tag", validateOCPPIdTag)
	validate.RegisterValidation("ocpp_availability_type", oneOf("Operative", "Inoperative"))
	validate.RegisterValidation("ocpp_reset_type", oneOf("Hard", "Soft"))
}

// validateOCPPIdTag 验证 idTag：非空、不超过20个字符、不含空白
func validateOCPPIdTag(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" || len(value) > MaxIdTagLength {
		return false
	}
	return !strings.ContainsAny(value, " \t\r\n")
}

func oneOf(values ...string) validator.Func {
	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[v] = true
	}
	return func(fl validator.FieldLevel) bool {
		return allowed[fl.Field().String()]
	}
}

// getErrorMessage 获取友好的错误消息
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "min":
		return fmt.Sprintf("Field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("Field '%s' must not exceed %s", fe.Field(), fe.Param())
	case "ocpp_id_tag":
		return fmt.Sprintf("Field '%s' must be a valid idTag (1-%d characters, no whitespace)", fe.Field(), MaxIdTagLength)
	case "ocpp_availability_type":
		return fmt.Sprintf("Field '%s' must be Operative or Inoperative", fe.Field())
	case "ocpp_reset_type":
		return fmt.Sprintf("Field '%s' must be Hard or Soft", fe.Field())
	default:
		return fmt.Sprintf("Field '%s' failed validation for tag '%s'", fe.Field(), fe.Tag())
	}
}

// ValidateChargePointID 验证充电桩ID，ID 会拼接进连接地址
func (v *Validator) ValidateChargePointID(chargePointID string) error {
	if chargePointID == "" {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "required",
			Message: "Charge point ID is required",
		}
	}

	if len(chargePointID) > 48 {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "max",
			Value:   chargePointID,
			Message: "Charge point ID must not exceed 48 characters",
		}
	}

	if !chargePointIDPattern.MatchString(chargePointID) {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "format",
			Value:   chargePointID,
			Message: "Charge point ID can only contain alphanumeric characters, '-', '_' and '.'",
		}
	}

	return nil
}

// ValidateIdTag 验证控制命令中传入的 idTag
func (v *Validator) ValidateIdTag(idTag string) error {
	if idTag == "" || len(idTag) > MaxIdTagLength || strings.ContainsAny(idTag, " \t\r\n") {
		return ValidationError{
			Field:   "idTag",
			Tag:     "ocpp_id_tag",
			Value:   idTag,
			Message: fmt.Sprintf("idTag must be 1-%d characters without whitespace", MaxIdTagLength),
		}
	}
	return nil
}
