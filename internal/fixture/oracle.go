package fixture

// OracleModule builds a wasm proof oracle whose verify functions all return
// verdict.
func OracleModule(verdict byte) []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		// types: (i32)->i32, (i32,i32)->i32
		0x01, 0x0c, 0x02, 0x60, 0x01, 0x7f, 0x01, 0x7f, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
		// functions
		0x03, 0x05, 0x04, 0x00, 0x01, 0x01, 0x01,
		// one page of memory
		0x05, 0x03, 0x01, 0x00, 0x01,
		// exports
		0x07, 0x4f, 0x05,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
		0x08, 'a', 'l', 'l', 'o', 'c', 'a', 't', 'e', 0x00, 0x00,
		0x0c, 'v', 'e', 'r', 'i', 'f', 'y', '_', 'p', 'r', 'o', 'o', 'f', 0x00, 0x01,
		0x13, 'v', 'e', 'r', 'i', 'f', 'y', '_', 's', 'u', 'm', '_', 'e', 'q', 'u', 'a', 'l', 'i', 't', 'y', 0x00, 0x02,
		0x12, 'v', 'e', 'r', 'i', 'f', 'y', '_', 'r', 'a', 'n', 'g', 'e', '_', 'b', 'o', 'u', 'n', 'd', 0x00, 0x03,
		// code: allocate returns 1024, verifiers return verdict
		0x0a, 0x16, 0x04,
		0x05, 0x00, 0x41, 0x80, 0x08, 0x0b,
		0x04, 0x00, 0x41, verdict, 0x0b,
		0x04, 0x00, 0x41, verdict, 0x0b,
		0x04, 0x00, 0x41, verdict, 0x0b,
	}
}

// EmptyModule is a wasm module with a header and nothing else.
func EmptyModule() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}
