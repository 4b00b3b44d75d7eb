package mir

// ByteCode is a raw EVM opcode byte.
type ByteCode byte

const (
	STOP       ByteCode = 0x00
	ADD        ByteCode = 0x01
	MUL        ByteCode = 0x02
	SUB        ByteCode = 0x03
	DIV        ByteCode = 0x04
	SDIV       ByteCode = 0x05
	MOD        ByteCode = 0x06
	SMOD       ByteCode = 0x07
	ADDMOD     ByteCode = 0x08
	MULMOD     ByteCode = 0x09
	EXP        ByteCode = 0x0a
	SIGNEXTEND ByteCode = 0x0b

	LT     ByteCode = 0x10
	GT     ByteCode = 0x11
	SLT    ByteCode = 0x12
	SGT    ByteCode = 0x13
	EQ     ByteCode = 0x14
	ISZERO ByteCode = 0x15
	AND    ByteCode = 0x16
	OR     ByteCode = 0x17
	XOR    ByteCode = 0x18
	NOT    ByteCode = 0x19
	BYTE   ByteCode = 0x1a
	SHL    ByteCode = 0x1b
	SHR    ByteCode = 0x1c
	SAR    ByteCode = 0x1d

	KECCAK256 ByteCode = 0x20

	ADDRESS        ByteCode = 0x30
	BALANCE        ByteCode = 0x31
	ORIGIN         ByteCode = 0x32
	CALLER         ByteCode = 0x33
	CALLVALUE      ByteCode = 0x34
	CALLDATALOAD   ByteCode = 0x35
	CALLDATASIZE   ByteCode = 0x36
	CALLDATACOPY   ByteCode = 0x37
	CODESIZE       ByteCode = 0x38
	CODECOPY       ByteCode = 0x39
	GASPRICE       ByteCode = 0x3a
	EXTCODESIZE    ByteCode = 0x3b
	EXTCODECOPY    ByteCode = 0x3c
	RETURNDATASIZE ByteCode = 0x3d
	RETURNDATACOPY ByteCode = 0x3e
	EXTCODEHASH    ByteCode = 0x3f

	BLOCKHASH   ByteCode = 0x40
	COINBASE    ByteCode = 0x41
	TIMESTAMP   ByteCode = 0x42
	NUMBER      ByteCode = 0x43
	PREVRANDAO  ByteCode = 0x44
	GASLIMIT    ByteCode = 0x45
	CHAINID     ByteCode = 0x46
	SELFBALANCE ByteCode = 0x47
	BASEFEE     ByteCode = 0x48
	BLOBHASH    ByteCode = 0x49
	BLOBBASEFEE ByteCode = 0x4a

	POP      ByteCode = 0x50
	MLOAD    ByteCode = 0x51
	MSTORE   ByteCode = 0x52
	MSTORE8  ByteCode = 0x53
	SLOAD    ByteCode = 0x54
	SSTORE   ByteCode = 0x55
	JUMP     ByteCode = 0x56
	JUMPI    ByteCode = 0x57
	PC       ByteCode = 0x58
	MSIZE    ByteCode = 0x59
	GAS      ByteCode = 0x5a
	JUMPDEST ByteCode = 0x5b
	TLOAD    ByteCode = 0x5c
	TSTORE   ByteCode = 0x5d
	MCOPY    ByteCode = 0x5e
	PUSH0    ByteCode = 0x5f

	PUSH1  ByteCode = 0x60
	PUSH32 ByteCode = 0x7f

	DUP1  ByteCode = 0x80
	DUP16 ByteCode = 0x8f

	SWAP1  ByteCode = 0x90
	SWAP16 ByteCode = 0x9f

	LOG0 ByteCode = 0xa0
	LOG1 ByteCode = 0xa1
	LOG2 ByteCode = 0xa2
	LOG3 ByteCode = 0xa3
	LOG4 ByteCode = 0xa4

	CREATE       ByteCode = 0xf0
	CALL         ByteCode = 0xf1
	CALLCODE     ByteCode = 0xf2
	RETURN       ByteCode = 0xf3
	DELEGATECALL ByteCode = 0xf4
	CREATE2      ByteCode = 0xf5
	STATICCALL   ByteCode = 0xfa
	REVERT       ByteCode = 0xfd
	INVALID      ByteCode = 0xfe
	SELFDESTRUCT ByteCode = 0xff
)

// MirOperation identifies the semantic operation of a MIR instruction.
type MirOperation uint16

const (
	MirINVALID MirOperation = iota
	MirSTOP
	MirADD
	MirMUL
	MirSUB
	MirDIV
	MirSDIV
	MirMOD
	MirSMOD
	MirADDMOD
	MirMULMOD
	MirEXP
	MirSIGNEXT
	MirLT
	MirGT
	MirSLT
	MirSGT
	MirEQ
	MirISZERO
	MirAND
	MirOR
	MirXOR
	MirNOT
	MirBYTE
	MirSHL
	MirSHR
	MirSAR
	MirKECCAK256
	MirADDRESS
	MirBALANCE
	MirORIGIN
	MirCALLER
	MirCALLVALUE
	MirCALLDATALOAD
	MirCALLDATASIZE
	MirCALLDATACOPY
	MirCODESIZE
	MirCODECOPY
	MirGASPRICE
	MirEXTCODESIZE
	MirEXTCODECOPY
	MirRETURNDATASIZE
	MirRETURNDATACOPY
	MirEXTCODEHASH
	MirBLOCKHASH
	MirCOINBASE
	MirTIMESTAMP
	MirNUMBER
	MirPREVRANDAO
	MirGASLIMIT
	MirCHAINID
	MirSELFBALANCE
	MirBASEFEE
	MirBLOBHASH
	MirBLOBBASEFEE
	MirMLOAD
	MirMSTORE
	MirMSTORE8
	MirSLOAD
	MirSSTORE
	MirJUMP
	MirJUMPI
	MirPC
	MirMSIZE
	MirGAS
	MirTLOAD
	MirTSTORE
	MirMCOPY
	MirLOG0
	MirLOG1
	MirLOG2
	MirLOG3
	MirLOG4
	MirCREATE
	MirCALL
	MirCALLCODE
	MirRETURN
	MirDELEGATECALL
	MirCREATE2
	MirSTATICCALL
	MirREVERT
	MirSELFDESTRUCT
)

var mirOpNames = map[MirOperation]string{
	MirINVALID:        "INVALID",
	MirSTOP:           "STOP",
	MirADD:            "ADD",
	MirMUL:            "MUL",
	MirSUB:            "SUB",
	MirDIV:            "DIV",
	MirSDIV:           "SDIV",
	MirMOD:            "MOD",
	MirSMOD:           "SMOD",
	MirADDMOD:         "ADDMOD",
	MirMULMOD:         "MULMOD",
	MirEXP:            "EXP",
	MirSIGNEXT:        "SIGNEXTEND",
	MirLT:             "LT",
	MirGT:             "GT",
	MirSLT:            "SLT",
	MirSGT:            "SGT",
	MirEQ:             "EQ",
	MirISZERO:         "ISZERO",
	MirAND:            "AND",
	MirOR:             "OR",
	MirXOR:            "XOR",
	MirNOT:            "NOT",
	MirBYTE:           "BYTE",
	MirSHL:            "SHL",
	MirSHR:            "SHR",
	MirSAR:            "SAR",
	MirKECCAK256:      "KECCAK256",
	MirADDRESS:        "ADDRESS",
	MirBALANCE:        "BALANCE",
	MirORIGIN:         "ORIGIN",
	MirCALLER:         "CALLER",
	MirCALLVALUE:      "CALLVALUE",
	MirCALLDATALOAD:   "CALLDATALOAD",
	MirCALLDATASIZE:   "CALLDATASIZE",
	MirCALLDATACOPY:   "CALLDATACOPY",
	MirCODESIZE:       "CODESIZE",
	MirCODECOPY:       "CODECOPY",
	MirGASPRICE:       "GASPRICE",
	MirEXTCODESIZE:    "EXTCODESIZE",
	MirEXTCODECOPY:    "EXTCODECOPY",
	MirRETURNDATASIZE: "RETURNDATASIZE",
	MirRETURNDATACOPY: "RETURNDATACOPY",
	MirEXTCODEHASH:    "EXTCODEHASH",
	MirBLOCKHASH:      "BLOCKHASH",
	MirCOINBASE:       "COINBASE",
	MirTIMESTAMP:      "TIMESTAMP",
	MirNUMBER:         "NUMBER",
	MirPREVRANDAO:     "PREVRANDAO",
	MirGASLIMIT:       "GASLIMIT",
	MirCHAINID:        "CHAINID",
	MirSELFBALANCE:    "SELFBALANCE",
	MirBASEFEE:        "BASEFEE",
	MirBLOBHASH:       "BLOBHASH",
	MirBLOBBASEFEE:    "BLOBBASEFEE",
	MirMLOAD:          "MLOAD",
	MirMSTORE:         "MSTORE",
	MirMSTORE8:        "MSTORE8",
	MirSLOAD:          "SLOAD",
	MirSSTORE:         "SSTORE",
	MirJUMP:           "JUMP",
	MirJUMPI:          "JUMPI",
	MirPC:             "PC",
	MirMSIZE:          "MSIZE",
	MirGAS:            "GAS",
	MirTLOAD:          "TLOAD",
	MirTSTORE:         "TSTORE",
	MirMCOPY:          "MCOPY",
	MirLOG0:           "LOG0",
	MirLOG1:           "LOG1",
	MirLOG2:           "LOG2",
	MirLOG3:           "LOG3",
	MirLOG4:           "LOG4",
	MirCREATE:         "CREATE",
	MirCALL:           "CALL",
	MirCALLCODE:       "CALLCODE",
	MirRETURN:         "RETURN",
	MirDELEGATECALL:   "DELEGATECALL",
	MirCREATE2:        "CREATE2",
	MirSTATICCALL:     "STATICCALL",
	MirREVERT:         "REVERT",
	MirSELFDESTRUCT:   "SELFDESTRUCT",
}

func (op MirOperation) String() string {
	if s, ok := mirOpNames[op]; ok {
		return s
	}
	return "UNKNOWN"
}

// memoryOps marks operations that read or write addressable state: EVM memory,
// storage, transient storage, calldata or return data. Calls and creates are
// included because they clobber memory and may touch storage reentrantly.
var memoryOps = map[MirOperation]bool{
	MirKECCAK256:      true,
	MirCALLDATALOAD:   true,
	MirCALLDATACOPY:   true,
	MirCODECOPY:       true,
	MirEXTCODECOPY:    true,
	MirRETURNDATACOPY: true,
	MirMLOAD:          true,
	MirMSTORE:         true,
	MirMSTORE8:        true,
	MirSLOAD:          true,
	MirSSTORE:         true,
	MirTLOAD:          true,
	MirTSTORE:         true,
	MirMCOPY:          true,
	MirLOG0:           true,
	MirLOG1:           true,
	MirLOG2:           true,
	MirLOG3:           true,
	MirLOG4:           true,
	MirCREATE:         true,
	MirCALL:           true,
	MirCALLCODE:       true,
	MirRETURN:         true,
	MirDELEGATECALL:   true,
	MirCREATE2:        true,
	MirSTATICCALL:     true,
	MirREVERT:         true,
	MirSELFDESTRUCT:   true,
}
