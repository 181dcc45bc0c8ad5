package id

import (
	"github.com/google/uuid"
)

// New 生成新的UUID（string格式），用于请求ID和临时文件名
func New() string {
	return uuid.New().String()
}
