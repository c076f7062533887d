/*
Copyright © 2020 Dell Inc. or its subsidiaries. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package base

import (
	"os"
	"strings"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"

	"github.com/dell/storagevirt/pkg/base/logger"
)

// InitLogger attempts to init logrus logger with output path passed in the parameter
// If path is incorrect or "" then init logger with stdout
// Receives logPath which is the file to write logs and logrus.Level which is level of logging (For example DEBUG, INFO)
// Returns created logrus.Logger or error if something went wrong
func InitLogger(logPath string, logLevel logrus.Level) (*logrus.Logger, error) {
	log := logrus.New()
	var childFormatter logrus.Formatter = &logrus.JSONFormatter{}
	if os.Getenv(LogFormatEnv) == "text" {
		childFormatter = &nested.Formatter{
			HideKeys:    true,
			NoColors:    true,
			FieldsOrder: []string{"component", "method", "volumeID"},
		}
	}
	log.SetFormatter(logger.NewRuntimeFormatter(childFormatter, logrus.DebugLevel))
	log.SetLevel(logLevel)
	if logPath != "" {
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.SetOutput(os.Stdout)
			return log, err
		}
		log.SetOutput(file)
		return log, nil
	}
	log.SetOutput(os.Stdout)
	return log, nil
}

// ParseLogLevel converts level name into logrus.Level, empty name means info
func ParseLogLevel(level string) (logrus.Level, error) {
	if strings.TrimSpace(level) == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(level)
}
