//go:build !linux && !darwin

package service

import (
	"fmt"
	"runtime"
)

type unsupportedManager struct{}

func newPlatformManager(string, commandRunner) Manager { return unsupportedManager{} }

func (unsupportedManager) Backend() string { return BackendUnsupported }

func (unsupportedManager) Install() error   { return errUnsupported() }
func (unsupportedManager) Uninstall() error { return errUnsupported() }
func (unsupportedManager) Start() error     { return errUnsupported() }
func (unsupportedManager) Stop() error      { return errUnsupported() }
func (unsupportedManager) Restart() error   { return errUnsupported() }

func (unsupportedManager) Status() (Status, error) {
	return Status{Backend: BackendUnsupported, Detail: errUnsupported().Error()}, nil
}

func (unsupportedManager) Logs(int) (string, error) { return "", errUnsupported() }

func errUnsupported() error {
	return fmt.Errorf("background service management is not supported on %s", runtime.GOOS)
}
