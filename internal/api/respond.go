package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"taller/internal/booking"
	"taller/internal/model"
	"taller/internal/schedule"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Messages shown to workshop staff.
const (
	msgSlotUnavailable   = "horario no disponible"
	msgSlotTaken         = "el horario acaba de ser tomado, elige otro"
	msgInvalidBlock      = "franja de bloqueo inválida"
	msgInvalidTransition = "cambio de estado no permitido"
	msgOutsideWindow     = "el horario está fuera del período de reserva"
	msgValidation        = "datos inválidos"
	msgNotFound          = "no encontrado"
	msgAlreadyExists     = "ya existe"
	msgConflict          = "el registro cambió mientras se editaba, recarga e intenta de nuevo"
	msgRateLimited       = "demasiadas solicitudes, intenta más tarde"
	msgInternal          = "no se pudo completar la operación"
	msgInvalidJSON       = "cuerpo JSON inválido"
)

// writeServiceError maps booking and store errors to a status and message.
// The order matters: ErrInvalidBlockWindow may wrap ErrAlreadyExists.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, msgInternal
	detail := ""
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		status, msg = http.StatusConflict, msgSlotTaken
	case errors.Is(err, booking.ErrSlotUnavailable):
		status, msg = http.StatusConflict, msgSlotUnavailable
	case errors.Is(err, booking.ErrInvalidBlockWindow):
		status, msg, detail = http.StatusUnprocessableEntity, msgInvalidBlock, err.Error()
	case errors.Is(err, booking.ErrInvalidTransition):
		status, msg, detail = http.StatusUnprocessableEntity, msgInvalidTransition, err.Error()
	case errors.Is(err, booking.ErrOutsideBookingWindow):
		status, msg = http.StatusUnprocessableEntity, msgOutsideWindow
	case errors.Is(err, booking.ErrValidation):
		status, msg, detail = http.StatusBadRequest, msgValidation, err.Error()
	case errors.Is(err, model.ErrNotFound):
		status, msg = http.StatusNotFound, msgNotFound
	case errors.Is(err, model.ErrAlreadyExists):
		status, msg = http.StatusConflict, msgAlreadyExists
	case errors.Is(err, model.ErrConcurrentModification):
		status, msg = http.StatusConflict, msgConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: msg, Detail: detail})
}

// decode reads a JSON body into dst and validates its tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidJSON, Detail: err.Error()})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgValidation, Detail: err.Error()})
		return false
	}
	return true
}

var tagMessages = map[string]string{
	"required": "es obligatorio",
	"min":      "debe ser al menos %s",
	"max":      "debe ser como máximo %s",
	"gt":       "debe ser mayor que %s",
	"email":    "no es un email válido",
	"datetime": "debe tener formato AAAA-MM-DD",
	"clock":    "debe tener formato HH:MM",
	"oneof":    "debe ser uno de: %s",
}

type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseClock(fl.Field().String())
		return err == nil
	})
	return &requestValidator{v: v}
}

// Struct validates s and flattens the failures into one readable error.
func (rv *requestValidator) Struct(s any) error {
	err := rv.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = "no es válido"
		}
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, strings.Join(strings.Fields(fe.Param()), ", "))
		}
		parts = append(parts, fe.Field()+" "+msg)
	}
	return errors.New(strings.Join(parts, "; "))
}
