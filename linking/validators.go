package linking

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("syncday", validSyncDay)
	}
}

// validSyncDay accepts the sync window date formats: a plain day or a full
// RFC 3339 timestamp. Empty is fine; omitempty handles requiredness.
func validSyncDay(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, ok := parseDay(s)
	return ok
}
