/*
 * Copyright 2026 The DataProvider Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logging

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	pkgerrors "github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
)

// RPCLogLevel represents the severity level for RPC logging.
type RPCLogLevel int

const (
	RPCLogDebug RPCLogLevel = iota
	RPCLogInfo
	RPCLogWarn
	RPCLogError
)

// String returns the string representation of RPCLogLevel.
func (l RPCLogLevel) String() string {
	switch l {
	case RPCLogDebug:
		return "debug"
	case RPCLogInfo:
		return "info"
	case RPCLogError:
		return "error"
	}
	return "warn"
}

// toRPCLogLevel determines the appropriate log level based on the error's
// status. Client mistakes stay quiet; server faults are loud.
func toRPCLogLevel(err error) RPCLogLevel {
	if err == nil {
		return RPCLogDebug
	}

	// A vanishing client is expected behavior, not an incident.
	if errors.Is(err, context.Canceled) {
		return RPCLogDebug
	}

	switch pkgerrors.StatusOf(err) {
	case pkgerrors.ErrCodeInvalidArgument,
		pkgerrors.ErrCodeNotFound,
		pkgerrors.ErrCodeAlreadyExists:
		return RPCLogInfo
	case pkgerrors.ErrCodeUnauthenticated,
		pkgerrors.ErrCodePermissionDenied,
		pkgerrors.ErrCodeFailedPrecondition,
		pkgerrors.ErrCodeResourceExhausted:
		return RPCLogWarn
	case pkgerrors.ErrCodeInternal, pkgerrors.ErrCodeUnavailable:
		return RPCLogError
	default:
		return RPCLogWarn
	}
}

func logRPCErrorWithLevel(
	logger *zap.SugaredLogger,
	template string,
	procedure string,
	duration time.Duration,
	err error,
) {
	switch toRPCLogLevel(err) {
	case RPCLogDebug:
		logger.Debugf(template, procedure, duration, err)
	case RPCLogInfo:
		logger.Infof(template, procedure, duration, err)
	case RPCLogWarn:
		logger.Warnf(template, procedure, duration, err)
	case RPCLogError:
		logger.Errorf(template, procedure, duration, err)
	default:
		logger.Warnf(template, procedure, duration, err)
	}
}

// LogRPCError logs failed API calls with the level the error's status calls
// for.
func LogRPCError(logger *zap.SugaredLogger, procedure string, duration time.Duration, err error) {
	logRPCErrorWithLevel(logger, "RPC : %q %s => %q", procedure, duration, err)
}

// LogRPCStreamError logs failed streaming calls with the level the error's
// status calls for.
func LogRPCStreamError(logger *zap.SugaredLogger, procedure string, duration time.Duration, err error) {
	logRPCErrorWithLevel(logger, "RPC : stream %q %s => %q", procedure, duration, err)
}

// LogRPCSuccess logs successful API calls at debug level.
func LogRPCSuccess(logger *zap.SugaredLogger, procedure string, duration time.Duration) {
	logger.Debugf("RPC : %q %s", procedure, duration)
}

// LogRPCStreamSuccess logs successful streaming calls at debug level.
func LogRPCStreamSuccess(logger *zap.SugaredLogger, procedure string, duration time.Duration) {
	logger.Debugf("RPC : stream %q %s", procedure, duration)
}
