// Package model implements inference for small sequential convolutional
// classifiers such as the voice CNN used by the detector.
//
// Models are described by a JSON document listing the input shape, class
// labels and layers in order. Files ending in .lzw are LZW compressed (LSB
// order, 8 bit literals). Weight tensors are either plain float arrays or
// base64 encoded little endian float16/float32 values.
//
// Tensors use channels-last layout, so a mel feature map is [128, 128, 1].
package model
