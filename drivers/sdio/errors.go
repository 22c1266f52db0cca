package sdio

import "errors"

var (
	ErrResponseChecksum = errors.New("response crc error")
	ErrResponseTimeout  = errors.New("response timeout")
	ErrBadResponseCmd   = errors.New("response command index mismatch")
	ErrCommandOther     = errors.New("command error")
	ErrBusyTimeout      = errors.New("card busy timeout")

	ErrDataChecksum = errors.New("data crc error")
	ErrDataTimeout  = errors.New("data timeout")
	ErrRxOverrun    = errors.New("receive overrun")
	ErrTxOverrun    = errors.New("transmit underrun")
	ErrDMA          = errors.New("dma transfer timeout")
)

// CmdError is the outcome of the command phase. Only the first detected error
// is reported.
type CmdError uint8

const (
	CmdErrorNone CmdError = iota
	CmdErrorResponseChecksum
	CmdErrorResponseTimeout
	CmdErrorBadResponseCmd
	CmdErrorOther
	CmdErrorBusyTimeout
)

var cmdErrs = [...]error{
	CmdErrorResponseChecksum: ErrResponseChecksum,
	CmdErrorResponseTimeout:  ErrResponseTimeout,
	CmdErrorBadResponseCmd:   ErrBadResponseCmd,
	CmdErrorOther:            ErrCommandOther,
	CmdErrorBusyTimeout:      ErrBusyTimeout,
}

func (e CmdError) Error() string {
	return e.String()
}

func (e CmdError) String() string {
	if e == CmdErrorNone {
		return "none"
	}
	if int(e) < len(cmdErrs) {
		return cmdErrs[e].Error()
	}
	return "invalid command error"
}

// Is makes the error codes match their sentinel errors.
func (e CmdError) Is(target error) bool {
	return int(e) < len(cmdErrs) && cmdErrs[e] != nil && cmdErrs[e] == target
}

// DataError is the outcome of the data phase, it is DataErrorNone for
// commands without data.
type DataError uint8

const (
	DataErrorNone DataError = iota
	DataErrorChecksum
	DataErrorTimeout
	DataErrorRxOverrun
	DataErrorTxOverrun
	DataErrorDMA
)

var dataErrs = [...]error{
	DataErrorChecksum:  ErrDataChecksum,
	DataErrorTimeout:   ErrDataTimeout,
	DataErrorRxOverrun: ErrRxOverrun,
	DataErrorTxOverrun: ErrTxOverrun,
	DataErrorDMA:       ErrDMA,
}

func (e DataError) Error() string {
	return e.String()
}

func (e DataError) String() string {
	if e == DataErrorNone {
		return "none"
	}
	if int(e) < len(dataErrs) {
		return dataErrs[e].Error()
	}
	return "invalid data error"
}

func (e DataError) Is(target error) bool {
	return int(e) < len(dataErrs) && dataErrs[e] != nil && dataErrs[e] == target
}
