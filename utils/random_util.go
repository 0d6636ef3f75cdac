package utils

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func GetUUID() string {
	u1, err := uuid.NewUUID()
	if err != nil {
		logrus.Errorf("[GetUUID] fail, err = %v", err)
		return uuid.NewString()
	}
	return u1.String()
}

// GetShortID 截取uuid前8位，用于日志和断点id
func GetShortID() string {
	return GetUUID()[:8]
}
