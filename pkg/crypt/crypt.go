// Package crypt 提供对话内容入库前的可逆混淆编码。
//
// 注意：这是混淆（obfuscation），不是加密。重复密钥 XOR + Base64
// 只能防止内容在数据库里明文可读，不提供任何机密性保证。
// 密钥必须与 n8n 工作流中的编码器使用同一个值，否则双方无法互解。
package crypt

import (
	"encoding/base64"
	"unicode/utf8"
)

// DefaultSecretKey 是与 n8n 侧编码器约定的默认密钥。
const DefaultSecretKey = "golge_benlik_gizli_anahtarim"

var secretKey = []rune(DefaultSecretKey)

// SetSecretKey 覆盖默认密钥（从配置加载时调用）。空字符串被忽略。
func SetSecretKey(key string) {
	if key != "" {
		secretKey = []rune(key)
	}
}

// Encode 对明文做逐码点 XOR 后再 Base64 编码。
// 按 rune 而不是字节进行 XOR，保证土耳其字母和 emoji 等多字节
// 字符在一轮 Encode/Decode 后原样还原。
func Encode(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	runes := []rune(plaintext)
	xored := make([]rune, len(runes))
	for i, r := range runes {
		xored[i] = r ^ secretKey[i%len(secretKey)]
	}
	return base64.StdEncoding.EncodeToString([]byte(string(xored)))
}

// Decode 是 Encode 的逆操作。
// 对于无法解析的输入（不是合法 Base64、历史遗留明文等）不会报错，
// 而是原样返回输入，避免单条坏记录阻塞整个历史渲染。
func Decode(opaque string) string {
	if opaque == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil || !utf8.Valid(raw) {
		return opaque
	}
	runes := []rune(string(raw))
	plain := make([]rune, len(runes))
	for i, r := range runes {
		plain[i] = r ^ secretKey[i%len(secretKey)]
	}
	return string(plain)
}
