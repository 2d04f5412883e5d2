package ral

// The peripheral instances. Host builds back them with ordinary
// memory; a port binds them at the peripheral base addresses instead.
var (
	LPUART1 = new(UARTRegs)
	LPUART2 = new(UARTRegs)
	LPUART3 = new(UARTRegs)
	LPUART4 = new(UARTRegs)
	LPUART5 = new(UARTRegs)
	LPUART6 = new(UARTRegs)
	LPUART7 = new(UARTRegs)
	LPUART8 = new(UARTRegs)

	LPSPI1 = new(SPIRegs)
	LPSPI2 = new(SPIRegs)
	LPSPI3 = new(SPIRegs)
	LPSPI4 = new(SPIRegs)

	LPI2C1 = new(I2CRegs)
	LPI2C2 = new(I2CRegs)
	LPI2C3 = new(I2CRegs)
	LPI2C4 = new(I2CRegs)

	GPIO1 = new(GPIORegs)
	GPIO2 = new(GPIORegs)
	GPIO3 = new(GPIORegs)
	GPIO4 = new(GPIORegs)

	GPT1 = new(GPTRegs)
	GPT2 = new(GPTRegs)

	PIT = new(PITRegs)

	DMA0   = new(DMARegs)
	DMAMUX = new(MuxRegs)

	CCM = new(CCMRegs)

	IOMUXC = new(PadRegs)
)

var uarts = [...]*UARTRegs{
	LPUART1, LPUART2, LPUART3, LPUART4,
	LPUART5, LPUART6, LPUART7, LPUART8,
}

var spis = [...]*SPIRegs{LPSPI1, LPSPI2, LPSPI3, LPSPI4}

var i2cs = [...]*I2CRegs{LPI2C1, LPI2C2, LPI2C3, LPI2C4}

var gpios = [...]*GPIORegs{GPIO1, GPIO2, GPIO3, GPIO4}

var gpts = [...]*GPTRegs{GPT1, GPT2}

// UARTAt returns the LPUART register block for instance n in [1,8].
func UARTAt(n int) *UARTRegs { return uarts[n-1] }

// SPIAt returns the LPSPI register block for instance n in [1,4].
func SPIAt(n int) *SPIRegs { return spis[n-1] }

// I2CAt returns the LPI2C register block for instance n in [1,4].
func I2CAt(n int) *I2CRegs { return i2cs[n-1] }

// GPIOAt returns the GPIO port register block for port n in [1,4].
func GPIOAt(n int) *GPIORegs { return gpios[n-1] }

// GPTAt returns the GPT register block for instance n in [1,2].
func GPTAt(n int) *GPTRegs { return gpts[n-1] }
