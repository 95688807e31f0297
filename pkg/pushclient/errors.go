package pushclient

import (
	"errors"
	"fmt"
)

// Reason is the closed set of reasons Subscribe can fail with.
type Reason string

// Failure reasons.
const (
	ReasonUnsupported           Reason = "unsupported"
	ReasonDenied                Reason = "denied"
	ReasonDefault               Reason = "default"
	ReasonMissingVAPIDPublicKey Reason = "missing_vapid_public_key"
	ReasonNoWorker              Reason = "no_sw"
	ReasonNoController          Reason = "no_controller"
	ReasonNetwork               Reason = "network"
	ReasonTimeout               Reason = "timeout"
)

// Reasons lists every failure reason.
var Reasons = []Reason{
	ReasonUnsupported,
	ReasonDenied,
	ReasonDefault,
	ReasonMissingVAPIDPublicKey,
	ReasonNoWorker,
	ReasonNoController,
	ReasonNetwork,
	ReasonTimeout,
}

// Failure is returned when enabling or disabling push did not complete.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("push %s: %v", f.Reason, f.Err)
	}
	return "push " + string(f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(reason Reason, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from err.
func ReasonOf(err error) (Reason, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason, true
	}
	return "", false
}

// SyncKind classifies a failed store call.
type SyncKind string

// Sync failure kinds.
const (
	SyncTransient SyncKind = "transient"
	SyncPermanent SyncKind = "permanent"
)

// SyncError reports that the server's subscription record could not be
// updated. The device side of the operation still succeeded.
type SyncError struct {
	Kind SyncKind

	// Status is the HTTP status of the store response, or zero.
	Status int

	Err error
}

func (e *SyncError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("subscription sync failed (%s, status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("subscription sync failed (%s): %v", e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying later may succeed.
func (e *SyncError) Temporary() bool {
	return e.Kind == SyncTransient
}

// asSyncError wraps err as a transient SyncError unless it already is one.
func asSyncError(err error) *SyncError {
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}
	return &SyncError{Kind: SyncTransient, Err: err}
}

var messages = map[Reason]string{
	ReasonUnsupported:           "Este navegador não suporta notificações push.",
	ReasonDenied:                "As notificações estão bloqueadas. Libere a permissão nas configurações do navegador.",
	ReasonDefault:               "A permissão para notificações não foi concedida. Tente novamente quando quiser.",
	ReasonMissingVAPIDPublicKey: "As notificações ainda não foram configuradas no servidor. Avise o suporte.",
	ReasonNoWorker:              "Não foi possível instalar o serviço de notificações. Recarregue a página.",
	ReasonNoController:          "O serviço de notificações ainda não está ativo. Recarregue a página e tente de novo.",
	ReasonNetwork:               "Falha de conexão com o serviço de notificações. Verifique sua internet.",
	ReasonTimeout:               "O serviço de notificações demorou demais para responder. Recarregue a página e tente de novo.",
}

const (
	genericMessage = "Não foi possível atualizar as notificações."
	syncMessage    = "As notificações foram atualizadas neste dispositivo, mas a sincronização com o servidor falhou."
)

// Message returns the user-facing pt-BR text for reason. Subscribe and
// Unsubscribe share reasons, so the text does not name either operation.
func Message(reason Reason) string {
	if msg, ok := messages[reason]; ok {
		return msg
	}
	return genericMessage
}

// MessageFor returns user-facing text for any error returned by this package.
// It returns "" only for a nil error.
func MessageFor(err error) string {
	if err == nil {
		return ""
	}
	if reason, ok := ReasonOf(err); ok {
		return Message(reason)
	}
	var se *SyncError
	if errors.As(err, &se) {
		return syncMessage
	}
	return genericMessage
}
