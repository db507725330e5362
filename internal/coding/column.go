package coding

import "fmt"

// ColumnCode 将从 0 开始的序号编码为双射 26 进制字母码（表格列名风格）：
// 0→A，25→Z，26→AA，27→AB，701→ZZ，702→AAA。
// 对所有非负整数单射；负数不会由编码表产生，视为调用方错误。
func ColumnCode(i int) string {
	if i < 0 {
		panic(fmt.Sprintf("coding: negative column index %d", i))
	}
	var buf [16]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('A' + i%26)
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	return string(buf[pos:])
}
