// Package ral is the register access layer: the register block layouts
// and the process-wide peripheral instances of a 1060-class i.MX RT.
// On a host the blocks live in ordinary memory and a simulator plays
// the hardware side; a port binds the same blocks at the peripheral
// base addresses.
//
// Ownership of an instance is not enforced here. Claim instances
// through the instance package before touching their registers.
package ral

import "github.com/imxrt-rs/imxrt-async-hal/mmio"

// UARTRegs is the LPUART register block.
type UARTRegs struct {
	BAUD  mmio.Register32
	STAT  mmio.Register32
	CTRL  mmio.Register32
	DATA  mmio.Register32
	FIFO  mmio.Register32
	WATER mmio.Register32
}

const (
	UART_BAUD_SBR_Msk      = 0x1fff
	UART_BAUD_SBR_Pos      = 0
	UART_BAUD_BOTHEDGE     = 1 << 17
	UART_BAUD_RDMAE        = 1 << 21
	UART_BAUD_TDMAE        = 1 << 23
	UART_BAUD_OSR_Msk      = 0x1f
	UART_BAUD_OSR_Pos      = 24
	UART_STAT_PF           = 1 << 16
	UART_STAT_FE           = 1 << 17
	UART_STAT_NF           = 1 << 18
	UART_STAT_OR           = 1 << 19
	UART_STAT_IDLE         = 1 << 20
	UART_STAT_RDRF         = 1 << 21
	UART_STAT_TDRE         = 1 << 23
	UART_CTRL_RE           = 1 << 18
	UART_CTRL_TE           = 1 << 19
	UART_FIFO_RXFLUSH      = 1 << 14
	UART_FIFO_TXFLUSH      = 1 << 15
	UART_STAT_FaultMask    = UART_STAT_PF | UART_STAT_FE | UART_STAT_NF | UART_STAT_OR
	UART_STAT_ClearAllMask = UART_STAT_FaultMask | UART_STAT_IDLE
)

// SPIRegs is the LPSPI register block.
type SPIRegs struct {
	CR    mmio.Register32
	SR    mmio.Register32
	IER   mmio.Register32
	DER   mmio.Register32
	CFGR1 mmio.Register32
	CCR   mmio.Register32
	TCR   mmio.Register32
	TDR   mmio.Register32
	RDR   mmio.Register32
	FCR   mmio.Register32
}

const (
	SPI_CR_MEN        = 1 << 0
	SPI_CR_RST        = 1 << 1
	SPI_SR_TDF        = 1 << 0
	SPI_SR_RDF        = 1 << 1
	SPI_SR_TCF        = 1 << 10
	SPI_SR_TEF        = 1 << 11
	SPI_SR_REF        = 1 << 12
	SPI_SR_DMF        = 1 << 13
	SPI_SR_MBF        = 1 << 24
	SPI_DER_TDDE      = 1 << 0
	SPI_DER_RDDE      = 1 << 1
	SPI_CFGR1_MASTER  = 1 << 0
	SPI_CCR_SCKDIV    = 0xff
	SPI_TCR_FRAMESZ   = 0xfff
	SPI_SR_FaultMask  = SPI_SR_TEF | SPI_SR_REF | SPI_SR_DMF
	SPI_CCR_SCKDIVPos = 0
)

// I2CRegs is the LPI2C controller register block.
type I2CRegs struct {
	MCR    mmio.Register32
	MSR    mmio.Register32
	MIER   mmio.Register32
	MDER   mmio.Register32
	MCFGR1 mmio.Register32
	MCCR0  mmio.Register32
	MTDR   mmio.Register32
	MRDR   mmio.Register32
}

const (
	I2C_MCR_MEN       = 1 << 0
	I2C_MCR_RST       = 1 << 1
	I2C_MSR_TDF       = 1 << 0
	I2C_MSR_RDF       = 1 << 1
	I2C_MSR_EPF       = 1 << 8
	I2C_MSR_SDF       = 1 << 9
	I2C_MSR_NDF       = 1 << 10
	I2C_MSR_ALF       = 1 << 11
	I2C_MSR_FEF       = 1 << 12
	I2C_MSR_PLTF      = 1 << 13
	I2C_MSR_MBF       = 1 << 24
	I2C_MSR_BBF       = 1 << 25
	I2C_MDER_TDDE     = 1 << 0
	I2C_MDER_RDDE     = 1 << 1
	I2C_MIER_SDIE     = 1 << 9
	I2C_MIER_NDIE     = 1 << 10
	I2C_MIER_ALIE     = 1 << 11
	I2C_MIER_PLTIE    = 1 << 13
	I2C_MSR_DMF       = 1 << 14
	I2C_MSR_FaultMask = I2C_MSR_NDF | I2C_MSR_ALF | I2C_MSR_FEF | I2C_MSR_PLTF
	I2C_MSR_ClearAllMask = I2C_MSR_EPF | I2C_MSR_SDF | I2C_MSR_DMF | I2C_MSR_FaultMask

	I2C_MCR_RRF = 1 << 8
	I2C_MCR_RTF = 1 << 9

	I2C_MCFGR1_PRESCALE_Msk = 0b111
	I2C_MCFGR1_PRESCALE_Pos = 0

	I2C_MCCR0_CLKLO_Pos   = 0
	I2C_MCCR0_CLKHI_Pos   = 8
	I2C_MCCR0_SETHOLD_Pos = 16
	I2C_MCCR0_DATAVD_Pos  = 24
	I2C_MCCR0_Field_Msk   = 0x3f

	// MTDR command encodings, written to bits 10:8 alongside the data
	// byte.
	I2C_MTDR_CMD_Transmit = 0b000 << 8
	I2C_MTDR_CMD_Receive  = 0b001 << 8
	I2C_MTDR_CMD_Stop     = 0b010 << 8
	I2C_MTDR_CMD_Start    = 0b100 << 8
)

// GPIORegs is a GPIO port register block. One block covers 32 pins.
type GPIORegs struct {
	DR      mmio.Register32
	GDIR    mmio.Register32
	PSR     mmio.Register32
	ICR1    mmio.Register32
	ICR2    mmio.Register32
	IMR     mmio.Register32
	ISR     mmio.Register32
	EDGESEL mmio.Register32
}

// ICR sensitivity encodings, two bits per pin.
const (
	GPIO_ICR_Low     = 0b00
	GPIO_ICR_High    = 0b01
	GPIO_ICR_Rising  = 0b10
	GPIO_ICR_Falling = 0b11
)

// GPTRegs is the general purpose timer register block.
type GPTRegs struct {
	CR   mmio.Register32
	PR   mmio.Register32
	SR   mmio.Register32
	IR   mmio.Register32
	OCR1 mmio.Register32
	OCR2 mmio.Register32
	OCR3 mmio.Register32
	CNT  mmio.Register32
}

const (
	GPT_CR_EN              = 1 << 0
	GPT_CR_ENMOD           = 1 << 1
	GPT_CR_WAITEN          = 1 << 3
	GPT_CR_CLKSRC_Msk      = 0b111
	GPT_CR_CLKSRC_Pos      = 6
	GPT_CR_CLKSRC_Osc      = 0b101
	GPT_CR_FRR             = 1 << 9
	GPT_CR_EN24M           = 1 << 10
	GPT_PR_PRESCALER24_Msk = 0xf
	GPT_PR_PRESCALER24_Pos = 12
	GPT_SR_OF1             = 1 << 0
	GPT_SR_OF2             = 1 << 1
	GPT_SR_OF3             = 1 << 2
	GPT_SR_ROV             = 1 << 5
	GPT_IR_OF1IE           = 1 << 0
	GPT_IR_OF2IE           = 1 << 1
	GPT_IR_OF3IE           = 1 << 2
)

// PITChannel is one of the four periodic interrupt timer channels.
type PITChannel struct {
	LDVAL mmio.Register32
	CVAL  mmio.Register32
	TCTRL mmio.Register32
	TFLG  mmio.Register32
}

// PITRegs is the periodic interrupt timer register block.
type PITRegs struct {
	MCR mmio.Register32
	CH  [4]PITChannel
}

const (
	PIT_MCR_MDIS   = 1 << 1
	PIT_TCTRL_TEN  = 1 << 0
	PIT_TCTRL_TIE  = 1 << 1
	PIT_TCTRL_CHN  = 1 << 2
	PIT_TFLG_TIF   = 1 << 0
	PIT_LDVAL_Max  = 0xffffffff
	GPT_Period_Max = 0xffffffff
)

// TCD is one DMA transfer control descriptor.
type TCD struct {
	SADDR  mmio.RegisterPtr
	SOFF   mmio.Register32
	ATTR   mmio.Register32
	NBYTES mmio.Register32
	DADDR  mmio.RegisterPtr
	DOFF   mmio.Register32
	CITER  mmio.Register32
	BITER  mmio.Register32
	CSR    mmio.Register32
}

const (
	DMA_ATTR_SSIZE_Pos = 8
	DMA_ATTR_DSIZE_Pos = 0
	DMA_ATTR_SIZE_Msk  = 0b111
	DMA_ATTR_Size8     = 0b000
	DMA_ATTR_Size16    = 0b001
	DMA_ATTR_Size32    = 0b010
	DMA_CSR_START      = 1 << 0
	DMA_CSR_INTMAJOR   = 1 << 1
	DMA_CSR_DREQ       = 1 << 3
	DMA_CSR_ACTIVE     = 1 << 6
	DMA_CSR_DONE       = 1 << 7
)

// DMAChannelCount is the number of channels in the DMA controller.
const DMAChannelCount = 32

// DMARegs is the DMA controller register block. ERQ enables hardware
// request routing per channel; INT and ERR hold one write-1-clear
// status bit per channel.
type DMARegs struct {
	CR  mmio.Register32
	ES  mmio.Register32
	ERQ mmio.Register32
	INT mmio.Register32
	ERR mmio.Register32
	HRS mmio.Register32
	TCD [DMAChannelCount]TCD
}

// MuxRegs is the DMA request multiplexer: one configuration register
// per channel selecting its peripheral request source.
type MuxRegs struct {
	CHCFG [DMAChannelCount]mmio.Register32
}

const (
	DMAMUX_CHCFG_ENBL       = 1 << 31
	DMAMUX_CHCFG_SOURCE_Msk = 0x7f
)

// CCMRegs is the clock control module register block. CCGR holds the
// clock gates, two bits per gate.
type CCMRegs struct {
	CBCMR  mmio.Register32
	CSCMR1 mmio.Register32
	CSCDR1 mmio.Register32
	CSCDR2 mmio.Register32
	CCGR   [8]mmio.Register32
}

// CCM root clock selection and divider fields.
const (
	CCM_CBCMR_LPSPI_CLK_SEL_Pos = 4
	CCM_CBCMR_LPSPI_CLK_SEL_Msk = 0b11 << CCM_CBCMR_LPSPI_CLK_SEL_Pos
	CCM_CBCMR_LPSPI_PODF_Pos    = 26
	CCM_CBCMR_LPSPI_PODF_Msk    = 0b111 << CCM_CBCMR_LPSPI_PODF_Pos

	CCM_CSCMR1_PERCLK_CLK_SEL  = 1 << 6
	CCM_CSCMR1_PERCLK_PODF_Pos = 0
	CCM_CSCMR1_PERCLK_PODF_Msk = 0x3f

	CCM_CSCDR1_UART_CLK_SEL      = 1 << 6
	CCM_CSCDR1_UART_CLK_PODF_Pos = 0
	CCM_CSCDR1_UART_CLK_PODF_Msk = 0x3f

	CCM_CSCDR2_LPI2C_CLK_SEL      = 1 << 18
	CCM_CSCDR2_LPI2C_CLK_PODF_Pos = 19
	CCM_CSCDR2_LPI2C_CLK_PODF_Msk = 0x3f << CCM_CSCDR2_LPI2C_CLK_PODF_Pos
)

// PadBankCount and PadsPerBank bound the pad table.
const (
	PadBankCount = 4
	PadsPerBank  = 16
)

// PadRegs holds the pad mux and configuration registers, grouped by
// bank (AD_B0, AD_B1, B0, B1).
type PadRegs struct {
	MuxCtl [PadBankCount][PadsPerBank]mmio.Register32
	PadCtl [PadBankCount][PadsPerBank]mmio.Register32
}
