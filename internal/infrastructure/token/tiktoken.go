package token

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// 在包初始化时设置离线加载器，避免运行时下载编码文件
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator 使用 tiktoken 精确估算 token 数量
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

// 单例实例
var (
	instance *Estimator
	once     sync.Once
	loadErr  error
)

// GetEstimator 获取 Estimator 单例
// 使用单例模式避免重复加载编码文件
func GetEstimator() (*Estimator, error) {
	once.Do(func() {
		// 使用 cl100k_base 编码（GPT-4、Claude 等模型兼容）
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			loadErr = err
			return
		}
		instance = &Estimator{encoding: enc}
	})

	if loadErr != nil {
		return nil, loadErr
	}
	return instance, nil
}

// CountTokens 计算文本的 token 数量
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.encoding.Encode(text, nil, nil))
}

// CharEstimator 字符估算回退
// tiktoken 编码文件加载失败时使用，按约 4 字符 1 token 粗估
type CharEstimator struct{}

// CountTokens 粗略估算 token 数量
func (CharEstimator) CountTokens(text string) int {
	return (len(text) + 3) / 4
}
