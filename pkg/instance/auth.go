package instance

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// authState remembers which credentials a fresh local instance accepts.
// It outlives single clients because checks create a new client every round.
type authState struct {
	mu       sync.Mutex
	defaults bool
}

var authStates sync.Map // instance name -> *authState

func sharedAuth(inst *Instance) *authState {
	v, _ := authStates.LoadOrStore(inst.Name, &authState{defaults: initializing(inst)})
	return v.(*authState)
}

func initializing(inst *Instance) bool {
	return inst.Local && !inst.Initialized
}

func (a *authState) credentials(inst *Instance) (string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.defaults {
		return UserDefault, PasswordDefault
	}
	return inst.User, inst.Password
}

// toggle switches credentials after an unauthorized response. Only instances
// still being initialized switch; the others keep their configured credentials.
func (a *authState) toggle(inst *Instance, logger *logrus.Logger) {
	if !initializing(inst) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.defaults {
		logger.Infof("Switching %s credentials from defaults to customized.", inst)
	} else {
		logger.Infof("Switching %s credentials from customized to defaults.", inst)
	}
	a.defaults = !a.defaults
}

// ResetAuth forgets the remembered credentials of the named instance.
func ResetAuth(name string) {
	authStates.Delete(name)
}
